package validator

// DetailedCode enumerates the Validator's seven-way cluster decision,
// before collapsing to the three final codes.
type DetailedCode int

const (
	// DetailedNone marks a point outside any cluster (noise); it is reset
	// to NotBuilding before any cluster decision runs.
	DetailedNone DetailedCode = iota
	UnsureByEntropy
	IARefuted
	IARefutedButUnderDBUni
	BothConfirmed
	IAConfirmedOnly
	DBOverlayedOnly
	BothUnsure
)

func (d DetailedCode) String() string {
	switch d {
	case UnsureByEntropy:
		return "unsure_by_entropy"
	case IARefuted:
		return "ia_refuted"
	case IARefutedButUnderDBUni:
		return "ia_refuted_but_under_db_uni"
	case BothConfirmed:
		return "both_confirmed"
	case IAConfirmedOnly:
		return "ia_confirmed_only"
	case DBOverlayedOnly:
		return "db_overlayed_only"
	case BothUnsure:
		return "both_unsure"
	default:
		return "none"
	}
}

// FinalBucket is one of the three collapsed outcomes.
type FinalBucket int

const (
	FinalBuilding FinalBucket = iota
	FinalNotBuilding
	FinalUnsure
)

// FinalBucketOf implements the spec's injective detailed-to-final mapping.
// Two clusters sharing a detailed code always share a final bucket, since
// this is a pure function of DetailedCode. Exported so the optimiser can
// evaluate the same mapping against a trial threshold vector.
func FinalBucketOf(d DetailedCode) FinalBucket {
	switch d {
	case BothConfirmed, IAConfirmedOnly, DBOverlayedOnly:
		return FinalBuilding
	case IARefuted, IARefutedButUnderDBUni:
		return FinalNotBuilding
	case UnsureByEntropy, BothUnsure:
		return FinalUnsure
	default:
		return FinalUnsure
	}
}
