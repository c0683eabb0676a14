//go:build js && wasm

// Command wasm exposes the telemetry codec to a browser dashboard reading
// the robot over Web Serial.
package main

import (
	"encoding/hex"
	"syscall/js"

	"sonarbot/protocol"
)

// Parser state is kept across feed calls so frames may arrive split.
var parser = protocol.NewParser()

func main() {
	js.Global().Set("sonarbotWasm", js.ValueOf(map[string]interface{}{
		"crc16":         js.FuncOf(crc16Wrapper),
		"feed":          js.FuncOf(feedWrapper),
		"reset":         js.FuncOf(resetWrapper),
		"stats":         js.FuncOf(statsWrapper),
		"encodeMove":    js.FuncOf(encodeMoveWrapper),
		"encodeSetMode": js.FuncOf(encodeSetModeWrapper),
		"version":       protocol.Version,
	}))

	// Keep the program running
	select {}
}

// crc16Wrapper calculates the frame checksum
// Args: hexString (string)
// Returns: number (uint16)
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

// feedWrapper parses received bytes
// Args: hexString (string)
// Returns: [{seq, id, name, args, text}] or {error}
func feedWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing hex string argument")
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return errorResult("invalid hex string: " + err.Error())
	}

	var events []interface{}
	parser.Feed(data, func(m protocol.Message) {
		ev, err := protocol.DecodeEvent(m)
		if err != nil {
			events = append(events, map[string]interface{}{"seq": int(m.Sequence), "error": err.Error()})
			return
		}
		values := make([]interface{}, len(ev.Args))
		for i, a := range ev.Args {
			values[i] = int(a)
		}
		events = append(events, map[string]interface{}{
			"seq":  int(ev.Sequence),
			"id":   int(ev.ID),
			"name": ev.Name,
			"args": values,
			"text": ev.String(),
		})
	})
	return js.ValueOf(events)
}

func resetWrapper(this js.Value, args []js.Value) interface{} {
	parser.Reset()
	return js.Undefined()
}

// statsWrapper returns the parser counters
func statsWrapper(this js.Value, args []js.Value) interface{} {
	s := parser.Stats()
	return js.ValueOf(map[string]interface{}{
		"frames":  int(s.Frames),
		"errors":  int(s.Errors),
		"dropped": int(s.Dropped),
	})
}

// encodeMoveWrapper builds a move frame
// Args: command letter (string), sequence (number)
// Returns: hex string
func encodeMoveWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || len(args[0].String()) != 1 {
		return errorResult("missing command letter")
	}
	return encode(args, protocol.MsgMove, uint32(args[0].String()[0]))
}

// encodeSetModeWrapper builds a set_mode frame
// Args: manual (bool), sequence (number)
// Returns: hex string
func encodeSetModeWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing mode argument")
	}
	mode := uint32(protocol.ModeAuto)
	if args[0].Truthy() {
		mode = protocol.ModeManual
	}
	return encode(args, protocol.MsgSetMode, mode)
}

func encode(args []js.Value, id uint16, value uint32) interface{} {
	seq := uint8(protocol.MessageDest)
	if len(args) > 1 {
		seq |= uint8(args[1].Int()) & protocol.MessageSeqMask
	}
	payload := protocol.NewScratchOutput()
	protocol.EncodeArgs(payload, uint32(id), value)
	frame, err := protocol.AppendFrame(nil, seq, payload.Result())
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(hex.EncodeToString(frame))
}

func errorResult(msg string) js.Value {
	return js.ValueOf(map[string]interface{}{"error": msg})
}
