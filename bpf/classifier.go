package bpf

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"golang.org/x/sys/unix"
)

// XDP verdicts returned by the classifier.
const (
	XDPAborted = 0
	XDPPass    = 2
)

// Frame layout. Only option-less IPv4 headers are understood.
const (
	ethHdrLen    = 14
	ethProtoOff  = 12
	ipv4HdrLen   = 20
	ipv4ProtoOff = ethHdrLen + 9
	tcpHdrLen    = 20
	tcpFlagsOff  = ethHdrLen + ipv4HdrLen + 13

	tcpFlagACK = 0x10
	tcpFlagSYN = 0x02

	// offsets into struct xdp_md
	xdpMdData    = 0
	xdpMdDataEnd = 4
)

const (
	regData    = asm.R7
	regDataEnd = asm.R8
	regScratch = asm.R9

	labelPass    = "pass"
	labelAborted = "aborted"
)

type branch struct {
	value   int32
	counter Counter
	label   string
}

var etherTypes = []branch{
	{value: int32(htons(unix.ETH_P_IP)), counter: IP, label: "eth_ipv4"},
	{value: int32(htons(unix.ETH_P_ARP)), counter: ARP, label: "eth_arp"},
}

var ipProtocols = []branch{
	{value: unix.IPPROTO_TCP, counter: TCP, label: "ip_tcp"},
	{value: unix.IPPROTO_UDP, counter: UDP, label: "ip_udp"},
	{value: unix.IPPROTO_ICMP, counter: ICMP, label: "ip_icmp"},
	{value: unix.IPPROTO_ICMPV6, counter: ICMP6, label: "ip_icmp6"},
}

// htons converts v to network order as it would be read from packet memory by
// a native-endian load.
func htons(v uint16) uint16 {
	return binary.NativeEndian.Uint16(binary.BigEndian.AppendUint16(nil, v))
}

// TableSpec describes the counter table the classifier updates.
func TableSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       TableName,
		Type:       ebpf.PerCPUArray,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: MaxCounters,
	}
}

// ClassifierSpec returns the collection holding the built-in classifier and its table.
func ClassifierSpec() *ebpf.CollectionSpec {
	return &ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			TableName: TableSpec(),
		},
		Programs: map[string]*ebpf.ProgramSpec{
			ProgramName: {
				Name:         ProgramName,
				Type:         ebpf.XDP,
				License:      "GPL",
				Instructions: classifierInstructions(),
			},
		},
	}
}

// builder attaches pending labels to the next emitted instruction.
type builder struct {
	insns   asm.Instructions
	pending string
}

func (b *builder) emit(insns ...asm.Instruction) {
	for _, ins := range insns {
		if b.pending != "" {
			ins = ins.WithSymbol(b.pending)
			b.pending = ""
		}
		b.insns = append(b.insns, ins)
	}
}

func (b *builder) label(name string) {
	if b.pending != "" {
		// ja +0 carries the previous label
		b.emit(asm.Instruction{OpCode: asm.Ja.Op(asm.ImmSource)})
	}
	b.pending = name
}

// guard aborts unless the first end bytes of the frame are readable.
func (b *builder) guard(end int32) {
	b.emit(
		asm.Mov.Reg(asm.R2, regData),
		asm.Add.Imm(asm.R2, end),
		asm.JGT.Reg(asm.R2, regDataEnd, labelAborted),
	)
}

// increment adds one to the current CPU's slot of c. Clobbers R0-R5.
func (b *builder) increment(c Counter) {
	done := fmt.Sprintf("inc_%s_done", c)

	b.emit(
		asm.StoreImm(asm.RFP, -4, int64(c), asm.Word),
		asm.LoadMapPtr(asm.R1, 0).WithReference(TableName),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -4),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, done),
		asm.LoadMem(asm.R1, asm.R0, 0, asm.DWord),
		asm.Add.Imm(asm.R1, 1),
		asm.StoreMem(asm.R0, 0, asm.R1, asm.DWord),
	)
	b.label(done)
}

func (b *builder) dispatch(reg asm.Register, branches []branch) {
	for _, br := range branches {
		b.emit(asm.JEq.Imm(reg, br.value, br.label))
	}
	b.emit(asm.Ja.Label(labelPass))
}

// classify counts and passes; every counter belonging to a branch is
// incremented on entry to the branch's block.
func (b *builder) classify(br branch) {
	b.label(br.label)
	b.increment(br.counter)
}

func classifierInstructions() asm.Instructions {
	b := &builder{}

	b.emit(
		asm.LoadMem(regData, asm.R1, xdpMdData, asm.Word),
		asm.LoadMem(regDataEnd, asm.R1, xdpMdDataEnd, asm.Word),
	)
	b.increment(Pkt)

	b.guard(ethHdrLen)
	b.emit(asm.LoadMem(regScratch, regData, ethProtoOff, asm.Half))
	b.dispatch(regScratch, etherTypes)

	// ARP
	b.classify(etherTypes[1])
	b.emit(asm.Ja.Label(labelPass))

	// IPv4
	b.classify(etherTypes[0])
	b.guard(ethHdrLen + ipv4HdrLen)
	b.emit(asm.LoadMem(regScratch, regData, ipv4ProtoOff, asm.Byte))
	b.dispatch(regScratch, ipProtocols)

	for _, br := range ipProtocols[1:] {
		b.classify(br)
		b.emit(asm.Ja.Label(labelPass))
	}

	// TCP
	b.classify(ipProtocols[0])
	b.guard(ethHdrLen + ipv4HdrLen + tcpHdrLen)
	b.emit(
		asm.LoadMem(regScratch, regData, tcpFlagsOff, asm.Byte),
		asm.Mov.Reg(asm.R1, regScratch),
		asm.And.Imm(asm.R1, tcpFlagACK),
		asm.JEq.Imm(asm.R1, 0, "tcp_no_ack"),
	)
	b.increment(ACK)
	b.label("tcp_no_ack")
	b.emit(
		asm.Mov.Reg(asm.R1, regScratch),
		asm.And.Imm(asm.R1, tcpFlagSYN),
		asm.JEq.Imm(asm.R1, 0, labelPass),
	)
	b.increment(SYN)

	b.label(labelPass)
	b.emit(
		asm.Mov.Imm(asm.R0, XDPPass),
		asm.Return(),
	)

	b.label(labelAborted)
	b.emit(
		asm.Mov.Imm(asm.R0, XDPAborted),
		asm.Return(),
	)

	return b.insns
}
