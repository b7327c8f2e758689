package vehicle

// negativeResponseSID is the UDS negative-response service identifier
// (0x7F); a response beginning with it never resolves to any catalogue
// entry.
const negativeResponseSID = 0x7F

// ResolveIndex matches an incoming response against a decoder's static
// request catalogue and returns the index of the single entry it
// answers, or -1 if none match.
//
// Matching order, each a precondition for the next:
//  1. length >= 2
//  2. data[0] != 0x7F (negative response)
//  3. for each catalogue entry: rspID == entry.RspID and
//     data[0] == entry.Data[1]+0x40 (positive-response SID echo) and
//     length > entry.Data[0]
//  4. the sub-function/DID bytes also match: for n = entry.Data[0]-1 bytes
//     starting at data[1], compared against entry.Data[2:2+n]
//
// The first catalogue entry satisfying all four wins; ResolveIndex is a
// pure function of its inputs and is deterministic.
func ResolveIndex(rspID uint32, length int, data []byte, catalogue []RequestDescriptor) int {
	if length < 2 {
		return -1
	}
	if data[0] == negativeResponseSID {
		return -1
	}

	for i, entry := range catalogue {
		if rspID != entry.RspID {
			continue
		}
		if data[0] != entry.Data[1]+0x40 {
			continue
		}
		expectedLen := int(entry.Data[0])
		if length <= expectedLen {
			continue
		}
		n := expectedLen - 1
		if n < 0 {
			continue
		}
		matched := true
		for j := 0; j < n; j++ {
			if data[1+j] != entry.Data[2+j] {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		return i
	}

	return -1
}
