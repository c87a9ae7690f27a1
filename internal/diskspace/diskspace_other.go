//go:build !(linux || darwin || freebsd || dragonfly || windows)

package diskspace

func availableBytes(string) (int64, bool) {
	return 0, false
}
