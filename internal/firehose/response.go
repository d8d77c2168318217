package firehose

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
)

// ErrNoResponse is returned when a device byte stream never produced a
// terminal <response> element before exhausting the read.
var ErrNoResponse = errors.New("firehose: no terminal response in stream")

// ErrNak wraps a device NAK with the accumulated <log> lines as context
// (spec §4.4 "Failure semantics").
type ErrNak struct {
	Logs []string
}

func (e *ErrNak) Error() string {
	if len(e.Logs) == 0 {
		return "firehose: NAK"
	}
	return "firehose: NAK: " + e.Logs[len(e.Logs)-1]
}

// Response is the decoded ResponseFrame: zero or more <log> lines
// followed by exactly one terminal <response> (spec §3).
type Response struct {
	Logs    []string
	Ack     bool
	RawMode bool

	// MaxPayloadSizeToTargetInBytes is the <response> element's own
	// attribute of that name, present when the device revises the
	// chunk size requested by a configure command. HasMaxPayloadSize
	// reports whether the attribute was present at all, since 0 is not
	// a valid revised size to fall back on silently.
	MaxPayloadSizeToTargetInBytes uint32
	HasMaxPayloadSize             bool
}

// ParseResponse decodes raw, which must contain at least one complete
// <response .../> element; any bytes after that element are ignored
// (the bulk-framing rule means trailing bytes there are payload data,
// not further XML, and are handled by the caller, not this parser).
func ParseResponse(raw []byte) (Response, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var resp Response

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return resp, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "log":
			for _, a := range se.Attr {
				if a.Name.Local == "value" {
					resp.Logs = append(resp.Logs, a.Value)
				}
			}
		case "response":
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "value":
					resp.Ack = a.Value == "ACK"
				case "rawmode":
					resp.RawMode = a.Value == "true"
				case "MaxPayloadSizeToTargetInBytes":
					if n, err := strconv.ParseUint(a.Value, 10, 32); err == nil {
						resp.MaxPayloadSizeToTargetInBytes = uint32(n)
						resp.HasMaxPayloadSize = true
					}
				}
			}
			return resp, nil
		}
	}
	return resp, ErrNoResponse
}

// CheckAck returns *ErrNak when resp is a NAK, nil otherwise.
func (r Response) CheckAck() error {
	if !r.Ack {
		return &ErrNak{Logs: r.Logs}
	}
	return nil
}
