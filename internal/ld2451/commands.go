package ld2451

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const commandWordLen = 2

// AppendCommand appends a complete command frame for cmd and value to dst.
func AppendCommand(dst []byte, cmd CommandWord, value []byte) []byte {
	dst = append(dst, CommandFrameHeader[:]...)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(commandWordLen+len(value)))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(cmd))
	dst = append(dst, value...)
	return append(dst, CommandFrameFooter[:]...)
}

// EncodeCommand returns a new command frame for cmd and value.
func EncodeCommand(cmd CommandWord, value ...byte) []byte {
	size := headerLen + lengthLen + commandWordLen + len(value) + footerLen
	return AppendCommand(make([]byte, 0, size), cmd, value)
}

// EnableConfigCommand puts the sensor in configuration mode. Every other
// command is ignored by the sensor unless this was sent first.
func EnableConfigCommand() []byte {
	return EncodeCommand(CmdEnableConfig, binary.LittleEndian.AppendUint16(nil, 0x0001)...)
}

// EndConfigCommand leaves configuration mode and resumes reporting.
func EndConfigCommand() []byte {
	return EncodeCommand(CmdEndConfig)
}

// DetectionCommand sets max distance, direction filter, min speed and the
// no-target delay.
func DetectionCommand(p Params) []byte {
	return EncodeCommand(CmdSetDetection, p.MaxDistance, byte(p.Direction), p.MinSpeed, p.ReportDelay)
}

// SensitivityCommand sets the trigger count and SNR threshold. The two
// trailing bytes are reserved and always zero.
func SensitivityCommand(p Params) []byte {
	return EncodeCommand(CmdSetSensitivity, p.TriggerCount, p.SNRThreshold, 0x00, 0x00)
}

// RestartCommand reboots the sensor module.
func RestartCommand() []byte {
	return EncodeCommand(CmdRestart)
}

// FactoryResetCommand restores factory settings; they apply on the next
// restart.
func FactoryResetCommand() []byte {
	return EncodeCommand(CmdFactoryReset)
}

// ReadFirmwareCommand asks the sensor for its firmware version.
func ReadFirmwareCommand() []byte {
	return EncodeCommand(CmdReadFirmware)
}

// BaudRateCommand changes the sensor UART speed from the next restart.
func BaudRateCommand(idx BaudRateIndex) []byte {
	return EncodeCommand(CmdSetBaudRate, binary.LittleEndian.AppendUint16(nil, uint16(idx))...)
}

// HandshakeSteps is the number of frames in a configuration handshake.
const HandshakeSteps = 4

// Handshake returns the configuration sequence for p in transmit order:
// enable-config, set-detection, set-sensitivity, end-config. Parameters are
// encoded as given; range checks are the caller's job.
func Handshake(p Params) [HandshakeSteps][]byte {
	return [HandshakeSteps][]byte{
		EnableConfigCommand(),
		DetectionCommand(p),
		SensitivityCommand(p),
		EndConfigCommand(),
	}
}

// DecodeCommand splits a command frame into its command word and value.
func DecodeCommand(frame []byte) (CommandWord, []byte, error) {
	if len(frame) < headerLen+lengthLen+commandWordLen+footerLen {
		return 0, nil, fmt.Errorf("command frame too short: %d bytes", len(frame))
	}
	if !bytes.Equal(frame[:headerLen], CommandFrameHeader[:]) {
		return 0, nil, fmt.Errorf("bad command frame header % X", frame[:headerLen])
	}
	n := int(binary.LittleEndian.Uint16(frame[headerLen:]))
	if n < commandWordLen || headerLen+lengthLen+n+footerLen != len(frame) {
		return 0, nil, fmt.Errorf("command frame length %d does not match %d byte frame", n, len(frame))
	}
	if !bytes.Equal(frame[len(frame)-footerLen:], CommandFrameFooter[:]) {
		return 0, nil, fmt.Errorf("bad command frame footer % X", frame[len(frame)-footerLen:])
	}
	body := frame[headerLen+lengthLen : headerLen+lengthLen+n]
	cmd := CommandWord(binary.LittleEndian.Uint16(body))
	return cmd, body[commandWordLen:], nil
}

// EncodeDataFrame builds a sensor report frame for targets. It is the inverse
// of Scanner + Decoder and is used by simulators and tests. approachingByte
// and recedingByte select the direction encoding.
func EncodeDataFrame(targets []Target, approachingByte, recedingByte byte) []byte {
	payload := make([]byte, 0, payloadPrefixLen+len(targets)*TargetRecordLen)
	payload = append(payload, byte(len(targets)), 0x00)
	for _, t := range targets {
		if t.Approaching {
			payload[1] = 0x01
		}
		dir := recedingByte
		if t.Approaching {
			dir = approachingByte
		}
		payload = append(payload, byte(t.Angle+AngleOffset), t.Distance, dir, t.Speed, t.SNR)
	}
	if len(targets) == 0 {
		payload = payload[:0]
	}

	frame := make([]byte, 0, frameOverhead+len(payload))
	frame = append(frame, DataFrameHeader[:]...)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	return append(frame, DataFrameFooter[:]...)
}
