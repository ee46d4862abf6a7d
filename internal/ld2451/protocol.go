// Package ld2451 implements the serial wire protocol spoken by the HLK-LD2451
// vehicle detection radar: data frame synchronisation and decoding, per-target
// record extraction, and the command frames used to reconfigure the sensor.
//
// Data frames (sensor -> host):
//
//	F4 F3 F2 F1 | len u16 LE | count u8 | reserved u8 | (angle dist dir speed snr) x count | F8 F7 F6 F5
//
// Command frames (host -> sensor):
//
//	FD FC FB FA | len u16 LE | cmd u16 LE | value... | 04 03 02 01
package ld2451

var (
	// DataFrameHeader starts every report frame emitted by the sensor.
	DataFrameHeader = [4]byte{0xF4, 0xF3, 0xF2, 0xF1}
	// DataFrameFooter terminates every report frame.
	DataFrameFooter = [4]byte{0xF8, 0xF7, 0xF6, 0xF5}
	// CommandFrameHeader starts every command frame written to the sensor.
	CommandFrameHeader = [4]byte{0xFD, 0xFC, 0xFB, 0xFA}
	// CommandFrameFooter terminates every command frame.
	CommandFrameFooter = [4]byte{0x04, 0x03, 0x02, 0x01}
)

const (
	// MaxTargets is the number of objects the sensor tracks concurrently.
	MaxTargets = 5

	// TargetRecordLen is the size of one target record inside a payload.
	TargetRecordLen = 5

	// payloadPrefixLen covers the count and reserved bytes.
	payloadPrefixLen = 2

	// MaxPayloadLen bounds the length field of a data frame. The sensor never
	// sends more than 64 bytes of intra-frame data; anything larger is a
	// corrupted length field.
	MaxPayloadLen = 64

	// AngleOffset is subtracted from the raw angle byte to get signed degrees.
	AngleOffset = 0x80

	headerLen = 4
	lengthLen = 2
	footerLen = 4

	// frameOverhead is everything in a data frame except the payload.
	frameOverhead = headerLen + lengthLen + footerLen

	// MaxFrameLen is the largest data frame the scanner will accept.
	MaxFrameLen = frameOverhead + MaxPayloadLen
)

// CommandWord identifies a command frame.
type CommandWord uint16

const (
	CmdSetDetection    CommandWord = 0x0002 // max distance, direction, min speed, delay
	CmdSetSensitivity  CommandWord = 0x0003 // trigger count, snr threshold, 2 reserved
	CmdReadDetection   CommandWord = 0x0012
	CmdReadSensitivity CommandWord = 0x0013
	CmdReadFirmware    CommandWord = 0x00A0
	CmdSetBaudRate     CommandWord = 0x00A1 // u16 BaudRateIndex
	CmdFactoryReset    CommandWord = 0x00A2 // applied after restart
	CmdRestart         CommandWord = 0x00A3
	CmdEndConfig       CommandWord = 0x00FE
	CmdEnableConfig    CommandWord = 0x00FF // value 0x0001
)

func (c CommandWord) String() string {
	switch c {
	case CmdSetDetection:
		return "set-detection"
	case CmdSetSensitivity:
		return "set-sensitivity"
	case CmdReadDetection:
		return "read-detection"
	case CmdReadSensitivity:
		return "read-sensitivity"
	case CmdReadFirmware:
		return "read-firmware"
	case CmdSetBaudRate:
		return "set-baud-rate"
	case CmdFactoryReset:
		return "factory-reset"
	case CmdRestart:
		return "restart"
	case CmdEndConfig:
		return "end-config"
	case CmdEnableConfig:
		return "enable-config"
	default:
		return "unknown"
	}
}

// BaudRateIndex selects the sensor UART speed for CmdSetBaudRate.
type BaudRateIndex uint16

const (
	Baud9600   BaudRateIndex = 0x0001
	Baud19200  BaudRateIndex = 0x0002
	Baud38400  BaudRateIndex = 0x0003
	Baud57600  BaudRateIndex = 0x0004
	Baud115200 BaudRateIndex = 0x0005 // factory default
	Baud230400 BaudRateIndex = 0x0006
	Baud256000 BaudRateIndex = 0x0007
	Baud460800 BaudRateIndex = 0x0008
)

var baudRates = map[int]BaudRateIndex{
	9600:   Baud9600,
	19200:  Baud19200,
	38400:  Baud38400,
	57600:  Baud57600,
	115200: Baud115200,
	230400: Baud230400,
	256000: Baud256000,
	460800: Baud460800,
}

// BaudRateIndexFor returns the sensor index for a baud rate in bits/s.
func BaudRateIndexFor(baud int) (BaudRateIndex, bool) {
	idx, ok := baudRates[baud]
	return idx, ok
}
