//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

// RuntimeName identifies the encoder backend compiled into this binary.
const RuntimeName = "stdlib"

func registerRuntimeEncoders(Encoders) {}
