package someip

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
)

// Message is a fully decoded, possibly reassembled SomeIP message ready for
// correlation and output.
type Message struct {
	ID        string // xid, assigned once per message; not included in output records
	Header    Header
	Payload   []byte
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Timestamp time.Time
}

// NewMessage builds a Message and assigns it a correlation id.
func NewMessage(h Header, payload []byte, srcIP, dstIP string, srcPort, dstPort uint16, ts time.Time) Message {
	return Message{
		ID:        xid.New().String(),
		Header:    h,
		Payload:   payload,
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Timestamp: ts,
	}
}

// Key returns the session key this message belongs to.
func (m Message) Key() Key {
	return KeyOf(m.Header)
}

// CSVHeader returns the column names for CSVRecord, in order.
func (m Message) CSVHeader() []string {
	return []string{
		"Timestamp", "SrcIP", "SrcPort", "DstIP", "DstPort",
		"ServiceID", "MethodID", "ClientID", "SessionID",
		"MessageType", "ReturnCode", "PayloadHex",
	}
}

// CSVRecord renders the message as a row matching CSVHeader's columns.
func (m Message) CSVRecord() []string {
	return []string{
		m.Timestamp.Format(time.RFC3339Nano),
		m.SrcIP,
		fmt.Sprintf("%d", m.SrcPort),
		m.DstIP,
		fmt.Sprintf("%d", m.DstPort),
		fmt.Sprintf("0x%04X", m.Header.ServiceID),
		fmt.Sprintf("0x%04X", m.Header.MethodID),
		fmt.Sprintf("0x%04X", m.Header.ClientID),
		fmt.Sprintf("0x%04X", m.Header.SessionID),
		m.Header.MessageType.String(),
		m.Header.ReturnCode.String(),
		hex.EncodeToString(m.Payload),
	}
}

// messagesTotal counts emitted messages by message type, mirroring the
// per-record Inc() convention used for audit records.
var messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "someip_messages_total",
	Help: "Number of SomeIP messages emitted by the orchestrator, by message type.",
}, []string{"message_type"})

func init() {
	prometheus.MustRegister(messagesTotal)
}

// Inc records this message's arrival in the messagesTotal counter.
func (m Message) Inc() {
	messagesTotal.WithLabelValues(m.Header.MessageType.String()).Inc()
}
