package ipv4

import (
	"fmt"

	"github.com/danmuck/wirekit/internal/protocol"
	"github.com/danmuck/wirekit/internal/protocol/schema"
)

// OptionBase is the layout every option shares. EOOL and NOP are a single
// octet; everything else carries a length that counts the type and
// length octets too.
var OptionBase = schema.New("ipv4_option",
	schema.Enum("type", 1, OptionNumber),
	schema.Conditional(schema.Uint8("length"), hasLength),
)

func hasLength(pkt *protocol.Packet) bool {
	code := pkt.Int("type")
	return code != OptEOOL && code != OptNOP
}

func option(name string, code int64, fields ...schema.Field) *schema.Schema {
	head := []schema.Field{schema.Enum("type", 1, OptionNumber, schema.Default(code))}
	return OptionBase.Extend(name, append(head, fields...)...).
		With(schema.WithPostProcess(checkSpan))
}

// sized overrides the length octet of a fixed-size option.
func sized(n int) schema.Field {
	return schema.Conditional(schema.Uint8("length", schema.Default(n)), hasLength)
}

// checkSpan rejects an option whose fields did not consume exactly its
// declared length.
func checkSpan(rec *schema.Record, _ *protocol.Packet) (*schema.Record, error) {
	want, ok := protocol.ToInt64(rec.Value("length"))
	if !ok {
		return rec, nil
	}
	b, err := rec.Bytes()
	if err != nil {
		return nil, err
	}
	if int64(len(b)) != want {
		return nil, &protocol.MalformedError{
			Schema: rec.Name(),
			Reason: fmt.Sprintf("length %d, fields span %d", want, len(b)),
		}
	}
	return rec, nil
}

// after is the length left once the first n octets of the option are read.
func after(name string, n int64) schema.LengthFunc {
	return func(pkt *protocol.Packet) (int, error) {
		length := pkt.Int("length")
		if length < n {
			return 0, &protocol.MalformedError{Schema: name, Reason: fmt.Sprintf("length %d < %d", length, n)}
		}
		return int(length - n), nil
	}
}

var (
	optEOOL = option("ipv4_opt_eool", OptEOOL)
	optNOP  = option("ipv4_opt_nop", OptNOP)

	optUnassigned = OptionBase.Extend("ipv4_opt_unassigned",
		schema.Bytes("data", schema.LenFunc(after("ipv4_opt_unassigned", 2)), schema.Default([]byte{})),
	).With(schema.WithPostProcess(checkSpan))

	optSEC = option("ipv4_opt_sec", OptSEC,
		schema.Enum("level", 1, ClassificationLevel),
		schema.Bytes("flags", schema.LenFunc(after("ipv4_opt_sec", 3)), schema.Default([]byte{})),
	)

	optESEC = option("ipv4_opt_esec", OptESEC,
		schema.Uint8("format"),
		schema.Bytes("info", schema.LenFunc(after("ipv4_opt_esec", 3)), schema.Default([]byte{})),
	)

	optRR  = routeOption("ipv4_opt_rr", OptRR)
	optLSR = routeOption("ipv4_opt_lsr", OptLSR)
	optSSR = routeOption("ipv4_opt_ssr", OptSSR)

	optTS = option("ipv4_opt_ts", OptTS,
		schema.Uint8("pointer", schema.Default(5)),
		schema.Bits("flags", 1, []schema.BitSpec{
			{Name: "oflw", Start: 0, Length: 4},
			{Name: "flag", Start: 4, Length: 4},
		}, schema.Default(map[string]uint64{})),
		schema.Switch("data", timestampData),
		schema.Padding("remainder", schema.LenFunc(timestampRest)),
	)

	optSID = option("ipv4_opt_sid", OptSID, sized(4),
		schema.Uint16("sid"),
	)

	optMTUP = option("ipv4_opt_mtup", OptMTUP, sized(4),
		schema.Uint16("mtu"),
	)

	optMTUR = option("ipv4_opt_mtur", OptMTUR, sized(4),
		schema.Uint16("mtu"),
	)

	optTR = option("ipv4_opt_tr", OptTR, sized(12),
		schema.Uint16("id"),
		schema.Uint16("outbound", schema.Default(0)),
		schema.Uint16("return", schema.Default(0)),
		schema.IPv4("origin"),
	)

	optRTRALT = option("ipv4_opt_rtralt", OptRTRALT, sized(4),
		schema.Enum("alert", 2, RouterAlert, schema.Default(0)),
	)

	optQS = option("ipv4_opt_qs", OptQS, sized(8),
		schema.ForwardMatch(qsFlags()),
		schema.Switch("data", quickStartData),
	)
)

// OptionRegistry maps option type codes to their layouts. Unregistered
// codes decode as opaque data.
var OptionRegistry = schema.NewRegistry("ipv4_options", OptionBase, optUnassigned).
	MustRegister(optEOOL, OptEOOL).
	MustRegister(optNOP, OptNOP).
	MustRegister(optSEC, OptSEC).
	MustRegister(optESEC, OptESEC).
	MustRegister(optRR, OptRR).
	MustRegister(optLSR, OptLSR).
	MustRegister(optSSR, OptSSR).
	MustRegister(optTS, OptTS).
	MustRegister(optSID, OptSID).
	MustRegister(optMTUP, OptMTUP).
	MustRegister(optMTUR, OptMTUR).
	MustRegister(optTR, OptTR).
	MustRegister(optRTRALT, OptRTRALT).
	MustRegister(optQS, OptQS)

// OptionSchema returns the layout registered for code.
func OptionSchema(code int64) (*schema.Schema, error) {
	return OptionRegistry.Lookup(code)
}

// Route options: the pointer is the 1-based octet offset of the next free
// address slot, so pointer-4 octets of addresses are filled in.
func routeOption(name string, code int64) *schema.Schema {
	return option(name, code,
		schema.Uint8("pointer", schema.Default(4)),
		schema.List("route", schema.IPv4("addr"), schema.LenFunc(routeLen(name)), schema.Default([]any{})),
		schema.Padding("remainder", schema.LenFunc(routeRest)),
	)
}

func routeLen(name string) schema.LengthFunc {
	return func(pkt *protocol.Packet) (int, error) {
		length, ptr := pkt.Int("length"), pkt.Int("pointer")
		if ptr < 4 || ptr > length+1 || (ptr-4)%4 != 0 {
			return 0, &protocol.MalformedError{Schema: name, Reason: fmt.Sprintf("pointer %d out of range for length %d", ptr, length)}
		}
		return int(ptr - 4), nil
	}
}

func routeRest(pkt *protocol.Packet) (int, error) {
	n := pkt.Int("length") - 3 - int64(routeFilled(pkt))
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

func routeFilled(pkt *protocol.Packet) int {
	if items, ok := pkt.Value("route").([]any); ok {
		return 4 * len(items)
	}
	return 0
}

// Timestamp flag values.
const (
	TSOnly         = 0
	TSWithAddress  = 1
	TSPrespecified = 3
)

var tsEntry = schema.New("ipv4_ts_entry",
	schema.IPv4("addr"),
	schema.Uint32("timestamp"),
)

func timestampData(pkt *protocol.Packet) (schema.Field, error) {
	length, ptr := pkt.Int("length"), pkt.Int("pointer")
	if length < 4 || ptr < 5 || ptr > length+1 {
		return nil, &protocol.MalformedError{Schema: "ipv4_opt_ts", Reason: fmt.Sprintf("pointer %d out of range for length %d", ptr, length)}
	}
	n := int(ptr - 5)
	switch pkt.Bit("flags", "flag") {
	case TSOnly:
		return schema.List("data", schema.Uint32("timestamp"), schema.Len(n), schema.Default([]any{})), nil
	case TSPrespecified:
		n = int(length - 4)
		fallthrough
	case TSWithAddress:
		return schema.List("data", schema.Nested("entry", tsEntry), schema.Len(n), schema.Default([]any{})), nil
	default:
		return schema.Bytes("data", schema.Len(int(length-4)), schema.Default([]byte{})), nil
	}
}

func timestampRest(pkt *protocol.Packet) (int, error) {
	used := int64(0)
	switch v := pkt.Value("data").(type) {
	case []byte:
		used = int64(len(v))
	case []any:
		width := int64(4)
		if pkt.Bit("flags", "flag") != TSOnly {
			width = 8
		}
		used = width * int64(len(v))
	}
	n := pkt.Int("length") - 4 - used
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

func qsFlags() *schema.BitField {
	return schema.Bits("flags", 1, []schema.BitSpec{
		{Name: "func", Start: 0, Length: 4},
		{Name: "rate", Start: 4, Length: 4},
	}, schema.Default(map[string]uint64{}))
}

func qsNonce() *schema.BitField {
	return schema.Bits("nonce", 4, []schema.BitSpec{
		{Name: "nonce", Start: 0, Length: 30},
	}, schema.Default(map[string]uint64{}))
}

var qsRequest = schema.New("ipv4_qs_request",
	qsFlags(),
	schema.Uint8("ttl", schema.Default(0)),
	qsNonce(),
)

var qsReport = schema.New("ipv4_qs_report",
	qsFlags(),
	schema.Padding("reserved", schema.Len(1)),
	qsNonce(),
)

// quickStartData picks the request or report layout from the function
// nibble peeked by the flags field.
func quickStartData(pkt *protocol.Packet) (schema.Field, error) {
	switch fn := int64(pkt.Bit("flags", "func")); fn {
	case QSRequest:
		return schema.Nested("data", qsRequest, schema.Len(6)), nil
	case QSReport:
		return schema.Nested("data", qsReport, schema.Len(6)), nil
	default:
		return nil, &protocol.MalformedError{Schema: "ipv4_opt_qs", Reason: fmt.Sprintf("unknown function %d", fn)}
	}
}

// QuickStartRate converts a rate nibble to kilobits per second.
func QuickStartRate(rate uint64) uint64 {
	if rate == 0 {
		return 0
	}
	return 40 << rate
}
