// Package serial provides a minimal, Linux-only serial port driver
// designed for interactive terminals that poll a device without blocking.
//
// The port is opened in raw mode with the requested framing and left in
// non-blocking mode, so a caller can ask how many bytes are buffered and
// read exactly those without ever waiting on the device.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Configurable framing: data bits, parity and stop bits
//   - Zero-wait polling via Buffered and ReadAvailable
//   - Optional read and write timeouts via poll(2)
//   - Idempotent Close
//   - PTY-based tests for reliability
//
// This package does **not** support Windows.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 115200,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	for {
//	    data, err := port.ReadAvailable()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    os.Stdout.Write(data)
//	    time.Sleep(10 * time.Millisecond)
//	}
package serial
