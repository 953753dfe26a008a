package exception

import "errors"

var (
	ErrSignalNegativeVolume = errors.New("signal: negative tick volume")
)
