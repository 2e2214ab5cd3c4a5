package task

import (
	"fmt"
	"strings"
	"time"
)

const virtualRefSeparator = "_recur_"

// OccurrenceRef addresses either a persisted task or a virtual occurrence of a
// master. The concrete types are RealRef and VirtualRef.
type OccurrenceRef interface {
	isOccurrenceRef()
	String() string
}

// RealRef points at a stored task.
type RealRef struct {
	TaskID string
}

// VirtualRef points at the occurrence of MasterID on Date.
type VirtualRef struct {
	MasterID string
	Date     Date
}

func (RealRef) isOccurrenceRef()    {}
func (VirtualRef) isOccurrenceRef() {}

func (r RealRef) String() string { return r.TaskID }

func (r VirtualRef) String() string {
	return r.MasterID + virtualRefSeparator + r.Date.Compact()
}

// ParseRef decodes the boundary encoding produced by String: a bare task id, or
// masterId_recur_YYYYMMDD for a virtual occurrence.
func ParseRef(s string) (OccurrenceRef, error) {
	if s == "" {
		return nil, fmt.Errorf("empty occurrence reference")
	}
	i := strings.LastIndex(s, virtualRefSeparator)
	if i < 0 {
		return RealRef{TaskID: s}, nil
	}
	master, stamp := s[:i], s[i+len(virtualRefSeparator):]
	if master == "" {
		return nil, fmt.Errorf("occurrence reference %q has no master id", s)
	}
	t, err := time.Parse(CompactDateLayout, stamp)
	if err != nil {
		return nil, fmt.Errorf("occurrence reference %q: bad date: %w", s, err)
	}
	return VirtualRef{MasterID: master, Date: DateOf(t)}, nil
}
