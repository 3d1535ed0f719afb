package workload

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ls4154/rangetest/db"
)

type CompactResult struct {
	Policy RangePolicy
	// Begin and End are the inclusive bounds passed to CompactRange; nil is
	// unbounded.
	Begin   []byte
	End     []byte
	Elapsed time.Duration
}

// CompactionRange resolves the range a policy compacts. For RangeSeek on an
// empty database both bounds are nil.
func CompactionRange(ldb db.DB, policy RangePolicy, recordCount int64) (begin, end []byte, err error) {
	switch policy {
	case RangeFull:
		return nil, nil, nil
	case RangeUser:
		return []byte("0"), []byte(strconv.FormatInt(recordCount, 10)), nil
	case RangeSeek:
		return seekRange(ldb)
	default:
		return nil, nil, fmt.Errorf("unknown range policy %d", int(policy))
	}
}

func seekRange(ldb db.DB) (begin, end []byte, err error) {
	it, err := ldb.NewIterator(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("seek range: new iterator: %w", err)
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("seek range: close iterator: %w", cerr)
		}
	}()

	it.SeekToFirst()
	if !it.Valid() {
		return nil, nil, it.Error()
	}
	begin = append([]byte(nil), it.Key()...)
	it.SeekToLast()
	if !it.Valid() {
		return nil, nil, it.Error()
	}
	end = append([]byte(nil), it.Key()...)
	return begin, end, nil
}

// Compact issues one CompactRange for the policy, printing
// "CompactRange Started" and "CompactRange Finished" around it.
func Compact(ldb db.DB, policy RangePolicy, recordCount int64, out io.Writer) (CompactResult, error) {
	if out == nil {
		out = io.Discard
	}
	begin, end, err := CompactionRange(ldb, policy, recordCount)
	if err != nil {
		return CompactResult{Policy: policy}, err
	}

	fmt.Fprintln(out, "CompactRange Started")
	start := time.Now()
	if err := ldb.CompactRange(begin, end); err != nil {
		return CompactResult{Policy: policy, Begin: begin, End: end}, fmt.Errorf("compact range: %w", err)
	}
	res := CompactResult{
		Policy:  policy,
		Begin:   begin,
		End:     end,
		Elapsed: time.Since(start),
	}
	fmt.Fprintln(out, "CompactRange Finished")
	return res, nil
}
