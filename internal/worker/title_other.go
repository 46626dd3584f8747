//go:build !linux

package worker

func setProcessTitle(string) error {
	return nil
}
