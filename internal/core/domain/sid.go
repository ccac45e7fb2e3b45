package domain

import (
	"fmt"
	"math"
)

// Sid is the packed semantic address of an atom.
//
// Layout, highest bits first:
//
//	[domain:16][document:16][item:16][reserved:16]
//
// The same value is the atom's primary key in the relational store and the
// external id of its vector in the index, so either side can be located from
// the other without a join.
type Sid uint64

// Bit offsets of each Sid field.
const (
	domainShift   = 48
	documentShift = 32
	itemShift     = 16

	fieldMask = 0xFFFF

	// MaxComponent is the largest value any Sid field can carry.
	MaxComponent = math.MaxUint16
)

// SidOf packs typed 16-bit components. It cannot fail.
func SidOf(domainID, documentID, itemID uint16) Sid {
	return Sid(uint64(domainID)<<domainShift |
		uint64(documentID)<<documentShift |
		uint64(itemID)<<itemShift)
}

// EncodeSid packs the given components after checking each lies in [0, MaxComponent].
// Pass 0 for components that do not apply (a domain-level address uses 0 for
// document and item).
func EncodeSid(domainID, documentID, itemID int) (Sid, error) {
	if err := checkComponent("domain_id", domainID); err != nil {
		return 0, err
	}
	if err := checkComponent("document_id", documentID); err != nil {
		return 0, err
	}
	if err := checkComponent("item_id", itemID); err != nil {
		return 0, err
	}
	return SidOf(uint16(domainID), uint16(documentID), uint16(itemID)), nil
}

func checkComponent(name string, v int) error {
	if v < 0 || v > MaxComponent {
		return fmt.Errorf("%w: %s %d out of range [0, %d]", ErrValidation, name, v, MaxComponent)
	}
	return nil
}

// Decode extracts the domain, document and item components.
func (s Sid) Decode() (domainID, documentID, itemID uint16) {
	return s.DomainID(), s.DocumentID(), s.ItemID()
}

// DomainID returns the domain component.
func (s Sid) DomainID() uint16 {
	return uint16(uint64(s) >> domainShift & fieldMask)
}

// DocumentID returns the document component.
func (s Sid) DocumentID() uint16 {
	return uint16(uint64(s) >> documentShift & fieldMask)
}

// ItemID returns the item component.
func (s Sid) ItemID() uint16 {
	return uint16(uint64(s) >> itemShift & fieldMask)
}

// String renders the Sid as fixed-width hex.
func (s Sid) String() string {
	return fmt.Sprintf("0x%016x", uint64(s))
}

// SidRange is an inclusive [Min, Max] interval of Sids.
type SidRange struct {
	Min Sid
	Max Sid
}

// Contains reports whether s lies within the range.
func (r SidRange) Contains(s Sid) bool {
	return s >= r.Min && s <= r.Max
}

// DomainRange returns every Sid whose domain field equals domainID.
func DomainRange(domainID uint16) SidRange {
	lo := uint64(domainID) << domainShift
	return SidRange{Min: Sid(lo), Max: Sid(lo | (1<<domainShift - 1))}
}

// DocumentRange computes a document bound from the document field alone.
// The domain field is left at zero, so the range only matches Sids of domain 0.
// Callers removing a document from a partition of another domain must use
// ScopedDocumentRange.
func DocumentRange(documentID uint16) SidRange {
	lo := uint64(documentID) << documentShift
	return SidRange{Min: Sid(lo), Max: Sid(lo | (1<<documentShift - 1))}
}

// ScopedDocumentRange returns every Sid of one document within one domain,
// across all item ids.
func ScopedDocumentRange(domainID, documentID uint16) SidRange {
	lo := uint64(domainID)<<domainShift | uint64(documentID)<<documentShift
	return SidRange{Min: Sid(lo), Max: Sid(lo | (1<<documentShift - 1))}
}
