// Package orchestrator drives the pipeline: decode, classify, reassemble,
// correlate. It owns the known-ports set, TP reassembler, TCP reassembler
// and session manager, and is the sole consumer of the producer/consumer
// frame queue — no other goroutine touches this state.
package orchestrator

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/AmnesiaBeing/someip-parser/decoder"
	"github.com/AmnesiaBeing/someip-parser/pkg/capture"
	"github.com/AmnesiaBeing/someip-parser/pkg/metrics"
	"github.com/AmnesiaBeing/someip-parser/pkg/someip"
	"github.com/AmnesiaBeing/someip-parser/pkg/tcpstream"
)

// Config holds every tunable the orchestrator needs beyond the capture
// source itself.
type Config struct {
	SDPort          uint16
	HasVLANFilter   bool
	VLANFilter      uint16
	RequestTimeout  time.Duration
	TPTimeout       time.Duration
	TCPTimeout      time.Duration
	TCPSegTimeout   time.Duration
	SessionCapacity int
	TCPCapacity     int
}

// Orchestrator ties the frame decoder, SD port-learner, TP reassembler,
// TCP reassembler and session manager together into one single-owner
// consumer loop.
type Orchestrator struct {
	cfg Config
	log *zap.Logger
	met *metrics.Registry

	frameDecoder *decoder.FrameDecoder
	knownPorts   *someip.KnownPorts
	tp           *someip.TPReassembler
	tcp          *tcpstream.Reassembler
	sessions     *someip.SessionManager

	out []someip.Message

	lastTCPFlowsEvicted int
}

// New builds an orchestrator from cfg, logging via log and recording
// counters into met (met may be nil to disable metrics).
func New(cfg Config, log *zap.Logger, met *metrics.Registry) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}

	someip.SetTPLogger(log.Named("tp"))
	someip.SetSessionLogger(log.Named("session"))
	tcpstream.SetLogger(log.Named("tcp"))

	segTimeout := cfg.TCPSegTimeout
	if segTimeout == 0 {
		segTimeout = cfg.TCPTimeout
	}

	return &Orchestrator{
		cfg:          cfg,
		log:          log,
		met:          met,
		frameDecoder: decoder.NewFrameDecoder(log.Named("decoder")),
		knownPorts:   someip.NewKnownPorts(cfg.SDPort),
		tp:           someip.NewTPReassembler(cfg.TPTimeout),
		tcp:          tcpstream.NewReassembler(cfg.TCPCapacity, segTimeout, cfg.TCPTimeout),
		sessions:     someip.NewSessionManager(cfg.SessionCapacity, cfg.RequestTimeout),
	}
}

// Run drains frames from in until it is closed, processing each in capture
// order, then performs the final session-manager sweep. Returns every
// emitted message in arrival/completion order.
func (o *Orchestrator) Run(in <-chan capture.RawFrame) []someip.Message {
	for frame := range in {
		o.processFrame(frame)
	}

	for _, pair := range o.sessions.SweepAll() {
		o.emitOrphan(pair)
	}

	return o.out
}

// TCPSummary writes the TCP reassembler's end-of-run statistics table to w.
func (o *Orchestrator) TCPSummary(w io.Writer) {
	o.tcp.Summary(w)
}

func (o *Orchestrator) processFrame(frame capture.RawFrame) {
	if o.met != nil {
		o.met.FramesSeen.Inc()
	}

	dg, ok := o.frameDecoder.Decode(frame.Data)
	if !ok {
		if o.met != nil {
			o.met.FramesDropped.WithLabelValues("link_or_network").Inc()
		}
		return
	}

	if o.cfg.HasVLANFilter && dg.HasVLAN && dg.VLANID != o.cfg.VLANFilter {
		return
	}

	if !o.knownPorts.Contains(dg.Tuple.SrcPort) && !o.knownPorts.Contains(dg.Tuple.DstPort) {
		return
	}

	switch {
	case dg.UDP != nil:
		o.processUDP(dg, frame.Timestamp)
	case dg.TCP != nil:
		o.processTCP(dg, frame.Timestamp)
	}

	now := frame.Timestamp
	for _, pair := range o.sessions.Sweep(now) {
		o.emitOrphan(pair)
	}
	o.tcp.Sweep(now)

	if o.met != nil {
		o.met.KnownPorts.Set(float64(o.knownPorts.Size()))
		o.met.TPPending.Set(float64(o.tp.Pending()))
		o.met.SessionsPending.Set(float64(o.sessions.Pending()))

		flowsActive, flowsEvicted := o.tcp.StatsSnapshot()

		o.met.TCPFlowsActive.Set(float64(flowsActive))
		if delta := flowsEvicted - o.lastTCPFlowsEvicted; delta > 0 {
			o.met.TCPFlowsEvicted.Add(float64(delta))
			o.lastTCPFlowsEvicted = flowsEvicted
		}
	}
}

func (o *Orchestrator) processUDP(dg decoder.Datagram, ts time.Time) {
	udp := dg.UDP
	if len(udp.Payload) < someip.HeaderLen {
		return
	}

	h, err := someip.DecodeHeader(udp.Payload)
	if err != nil {
		if o.met != nil {
			o.met.FramesDropped.WithLabelValues("someip_header").Inc()
		}
		return
	}

	if someip.IsSDPacket(h, dg.Tuple.SrcPort, dg.Tuple.DstPort, o.cfg.SDPort) {
		body := udp.Payload[someip.HeaderLen:]
		sdPkt, err := someip.ParseSD(h, body)
		if err != nil {
			o.log.Debug("dropping malformed sd packet", zap.Error(err))
			return
		}
		o.knownPorts.Learn(sdPkt)
		if o.met != nil {
			o.met.SDPacketsLearned.Inc()
		}
		return
	}

	if h.IsTP() {
		tail := udp.Payload[someip.HeaderLen:]
		rh, payload, ok, err := o.tp.Admit(h, tail, ts)
		if err != nil {
			o.log.Debug("tp reassembly error", zap.Error(err))
			if o.met != nil {
				o.met.TPExpired.Inc()
			}
			return
		}
		if !ok {
			return
		}
		if o.met != nil {
			o.met.TPReassembled.Inc()
		}
		o.emitAndRoute(rh, payload, dg, ts)
		return
	}

	if someip.IsMSIPacket(h) {
		body := udp.Payload[someip.HeaderLen:]
		headers, payloads, _, err := someip.SplitMSI(body)
		if err != nil {
			o.log.Debug("msi split error", zap.Error(err))
			return
		}
		for i, eh := range headers {
			o.emitAndRoute(eh, payloads[i], dg, ts)
		}
		return
	}

	payload, err := someip.SlicePayload(h, udp.Payload)
	if err != nil {
		if o.met != nil {
			o.met.FramesDropped.WithLabelValues("someip_payload").Inc()
		}
		return
	}
	o.emitAndRoute(h, payload, dg, ts)
}

func (o *Orchestrator) processTCP(dg decoder.Datagram, ts time.Time) {
	tcp := dg.TCP
	key := tcpstream.FlowKey{
		SrcIP:   dg.Tuple.SrcIP,
		SrcPort: dg.Tuple.SrcPort,
		DstIP:   dg.Tuple.DstIP,
		DstPort: dg.Tuple.DstPort,
	}

	chunk, ok := o.tcp.Admit(key, tcp.Seq, tcp.Flags.SYN, tcp.Flags.FIN, tcp.Flags.RST, tcp.Payload, ts)
	if !ok {
		return
	}

	chunk = o.tcp.Tail(key, chunk)
	o.frameTCPMessages(key, dg, chunk, ts)
}

// frameTCPMessages parses concatenated SomeIP messages out of a reassembled
// TCP byte run. Any undelivered trailing bytes (a partial header or a
// header whose declared length exceeds what's available so far) are
// stashed via SetTail so they prefix the next emission for this flow,
// rather than being dropped.
func (o *Orchestrator) frameTCPMessages(key tcpstream.FlowKey, dg decoder.Datagram, chunk []byte, ts time.Time) {
	off := 0
	for len(chunk)-off >= someip.HeaderLen {
		h, err := someip.DecodeHeader(chunk[off:])
		if err != nil {
			o.tcp.SetTail(key, nil)
			return
		}

		need := someip.HeaderLen + h.PayloadLen()
		if off+need > len(chunk) {
			// partial message: not enough bytes yet, buffer the tail.
			o.tcp.SetTail(key, append([]byte(nil), chunk[off:]...))
			return
		}

		payload := chunk[off+someip.HeaderLen : off+need]
		o.emitAndRoute(h, payload, dg, ts)
		off += need
	}

	if off < len(chunk) {
		o.tcp.SetTail(key, append([]byte(nil), chunk[off:]...))
	}
}

func (o *Orchestrator) emitAndRoute(h someip.Header, payload []byte, dg decoder.Datagram, ts time.Time) {
	msg := someip.NewMessage(h, payload, dg.Tuple.SrcIP, dg.Tuple.DstIP, dg.Tuple.SrcPort, dg.Tuple.DstPort, ts)
	msg.Inc()

	mt := h.MessageType

	switch {
	case mt.IsResponseLike():
		if pair, ok := o.sessions.AddResponse(msg); ok {
			o.out = append(o.out, pair.Request)
			o.out = append(o.out, *pair.Response)
			if o.met != nil {
				o.met.SessionsCompleted.Inc()
			}
		}
	case mt.IsRequestLike():
		if evicted := o.sessions.AddRequest(msg, ts); evicted != nil {
			if o.met != nil {
				o.met.SessionsEvicted.Inc()
			}
			o.emitOrphan(*evicted)
		}
	default:
		// notifications and ack variants bypass the session manager.
		o.out = append(o.out, msg)
	}
}

func (o *Orchestrator) emitOrphan(pair someip.Pair) {
	if o.met != nil {
		o.met.SessionsOrphaned.Inc()
	}
	o.out = append(o.out, pair.Request)
}
