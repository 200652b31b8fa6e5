package comm

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"google.golang.org/grpc/metadata"
)

// Metadata keys carried on every Exchange call.
const (
	mdRank  = "x-collbench-rank"
	mdSize  = "x-collbench-size"
	mdSeq   = "x-collbench-seq"
	mdKind  = "x-collbench-kind"
	mdOp    = "x-collbench-op"
	mdRoot  = "x-collbench-root"
	mdValue = "x-collbench-value"
)

const maxParts = 1 << 20

// encodeParts frames gathered blocks as a uvarint count followed by
// uvarint-length-prefixed blocks.
func encodeParts(parts [][]byte) []byte {
	if len(parts) == 0 {
		return nil
	}
	n := binary.MaxVarintLen64 * (len(parts) + 1)
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	buf = binary.AppendUvarint(buf, uint64(len(parts)))
	for _, p := range parts {
		buf = binary.AppendUvarint(buf, uint64(len(p)))
		buf = append(buf, p...)
	}
	return buf
}

func decodeParts(buf []byte) ([][]byte, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad part count", ErrProtocol)
	}
	if count > maxParts {
		return nil, fmt.Errorf("%w: %d parts exceeds limit %d", ErrProtocol, count, maxParts)
	}
	buf = buf[n:]
	parts := make([][]byte, count)
	for i := range parts {
		l, n := binary.Uvarint(buf)
		if n <= 0 || l > uint64(len(buf)-n) {
			return nil, fmt.Errorf("%w: truncated part %d", ErrProtocol, i)
		}
		end := n + int(l)
		parts[i] = buf[n:end:end]
		buf = buf[end:]
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d parts", ErrProtocol, len(buf), count)
	}
	return parts, nil
}

// callHeader is the decoded routing information of one Exchange call.
type callHeader struct {
	rank  int
	size  int
	seq   uint64
	kind  opKind
	op    Op
	root  int
	value float64
}

// pairs returns the header as alternating metadata keys and values.
func (h callHeader) pairs() []string {
	kv := []string{
		mdRank, strconv.Itoa(h.rank),
		mdSize, strconv.Itoa(h.size),
		mdSeq, strconv.FormatUint(h.seq, 10),
		mdKind, strconv.Itoa(int(h.kind)),
	}
	if h.kind == kindReduce {
		kv = append(kv,
			mdOp, strconv.Itoa(int(h.op)),
			mdRoot, strconv.Itoa(h.root),
			mdValue, formatValue(h.value),
		)
	}
	return kv
}

func decodeHeader(md metadata.MD) (callHeader, error) {
	var h callHeader
	var err error
	if h.rank, err = mdInt(md, mdRank); err != nil {
		return h, err
	}
	if h.size, err = mdInt(md, mdSize); err != nil {
		return h, err
	}
	seq, err := mdString(md, mdSeq)
	if err != nil {
		return h, err
	}
	if h.seq, err = strconv.ParseUint(seq, 10, 64); err != nil {
		return h, fmt.Errorf("%s: %w", mdSeq, err)
	}
	kind, err := mdInt(md, mdKind)
	if err != nil {
		return h, err
	}
	h.kind = opKind(kind)
	switch h.kind {
	case kindBarrier, kindGather:
	case kindReduce:
		op, err := mdInt(md, mdOp)
		if err != nil {
			return h, err
		}
		h.op = Op(op)
		if !h.op.valid() {
			return h, fmt.Errorf("unknown reduction %d", op)
		}
		if h.root, err = mdInt(md, mdRoot); err != nil {
			return h, err
		}
		raw, err := mdString(md, mdValue)
		if err != nil {
			return h, err
		}
		if h.value, err = strconv.ParseFloat(raw, 64); err != nil {
			return h, fmt.Errorf("%s: %w", mdValue, err)
		}
	default:
		return h, fmt.Errorf("unknown collective kind %d", kind)
	}
	return h, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func mdString(md metadata.MD, key string) (string, error) {
	vals := md.Get(key)
	if len(vals) == 0 {
		return "", fmt.Errorf("missing %s", key)
	}
	return vals[0], nil
}

func mdInt(md metadata.MD, key string) (int, error) {
	raw, err := mdString(md, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
