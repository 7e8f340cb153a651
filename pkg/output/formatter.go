// Package output renders completed SomeIP records as text, JSON or YAML.
package output

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/AmnesiaBeing/someip-parser/pkg/matrix"
	"github.com/AmnesiaBeing/someip-parser/pkg/someip"
)

// Record is one emitted output row: a message (possibly a session pair's
// request or response) rendered with matrix-mapped names.
type Record struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Sender      string    `json:"sender" yaml:"sender"`
	Receiver    string    `json:"receiver" yaml:"receiver"`
	Service     string    `json:"service" yaml:"service"`
	Method      string    `json:"method" yaml:"method"`
	MessageType string    `json:"message_type" yaml:"message_type"`
	ReturnCode  string    `json:"return_code" yaml:"return_code"`
	PayloadHex  string    `json:"payload" yaml:"payload"`
}

// NewRecord builds a Record from a decoded message, mapping service/method
// ids through m if non-nil.
func NewRecord(msg someip.Message, m *matrix.Matrix) Record {
	serviceName := fmt.Sprintf("0x%04X", msg.Header.ServiceID)
	methodName := fmt.Sprintf("0x%04X", msg.Header.MethodID)
	if m != nil {
		serviceName = m.ServiceName(uint32(msg.Header.ServiceID))
		methodName = m.MethodName(uint32(msg.Header.ServiceID), uint32(msg.Header.MethodID))
	}

	return Record{
		Timestamp:   msg.Timestamp,
		Sender:      fmt.Sprintf("%s:%d", msg.SrcIP, msg.SrcPort),
		Receiver:    fmt.Sprintf("%s:%d", msg.DstIP, msg.DstPort),
		Service:     serviceName,
		Method:      methodName,
		MessageType: msg.Header.MessageType.String(),
		ReturnCode:  msg.Header.ReturnCode.String(),
		PayloadHex:  hex.EncodeToString(msg.Payload),
	}
}

// Formatter renders a slice of records as a complete document.
type Formatter interface {
	Format(records []Record) ([]byte, error)
}

// TextFormatter renders the human-readable line format:
// "[ts] sender -> receiver | service:method | type | return_code\nPayload: hexbytes\n\n"
type TextFormatter struct{}

func (TextFormatter) Format(records []Record) ([]byte, error) {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "[%s] %s -> %s | %s:%s | %s | %s\n",
			r.Timestamp.Format("2006-01-02T15:04:05.000"),
			r.Sender, r.Receiver, r.Service, r.Method, r.MessageType, r.ReturnCode)
		fmt.Fprintf(&b, "Payload: %s\n\n", r.PayloadHex)
	}
	return []byte(b.String()), nil
}

// JSONFormatter renders records as a JSON array, seconds-as-double
// timestamps.
type JSONFormatter struct{}

type jsonRecord struct {
	Timestamp   float64 `json:"timestamp" yaml:"timestamp"`
	Sender      string  `json:"sender" yaml:"sender"`
	Receiver    string  `json:"receiver" yaml:"receiver"`
	Service     string  `json:"service" yaml:"service"`
	Method      string  `json:"method" yaml:"method"`
	MessageType string  `json:"message_type" yaml:"message_type"`
	ReturnCode  string  `json:"return_code" yaml:"return_code"`
	PayloadHex  string  `json:"payload" yaml:"payload"`
}

func (JSONFormatter) Format(records []Record) ([]byte, error) {
	out := make([]jsonRecord, 0, len(records))
	for _, r := range records {
		out = append(out, jsonRecord{
			Timestamp:   float64(r.Timestamp.UnixNano()) / 1e9,
			Sender:      r.Sender,
			Receiver:    r.Receiver,
			Service:     r.Service,
			Method:      r.Method,
			MessageType: r.MessageType,
			ReturnCode:  r.ReturnCode,
			PayloadHex:  r.PayloadHex,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// YAMLFormatter renders records as a YAML sequence, seconds-as-double
// timestamps.
type YAMLFormatter struct{}

func (YAMLFormatter) Format(records []Record) ([]byte, error) {
	out := make([]jsonRecord, 0, len(records))
	for _, r := range records {
		out = append(out, jsonRecord{
			Timestamp:   float64(r.Timestamp.UnixNano()) / 1e9,
			Sender:      r.Sender,
			Receiver:    r.Receiver,
			Service:     r.Service,
			Method:      r.Method,
			MessageType: r.MessageType,
			ReturnCode:  r.ReturnCode,
			PayloadHex:  r.PayloadHex,
		})
	}
	return yaml.Marshal(out)
}

// ForName returns the formatter named by the CLI --output-format flag.
func ForName(name string) (Formatter, error) {
	switch name {
	case "text":
		return TextFormatter{}, nil
	case "json":
		return JSONFormatter{}, nil
	case "yaml":
		return YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", name)
	}
}
