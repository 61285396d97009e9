package sessions

// Match reports whether r satisfies every criterion set in p.
func Match(r Record, p SearchParam) bool {
	if p.SessionID != "" && r.SessionID != p.SessionID {
		return false
	}
	if p.SessionPublicKey != zeroAddr && r.SessionPublicKey != p.SessionPublicKey {
		return false
	}
	if p.SessionValidationModule != zeroAddr && r.SessionValidationModule != p.SessionValidationModule {
		return false
	}
	if p.Status != "" && r.Status != p.Status {
		return false
	}
	return true
}

// Filter returns the records matching p, in order.
func Filter(records []Record, p SearchParam) []Record {
	var out []Record
	for _, r := range records {
		if Match(r, p) {
			out = append(out, r)
		}
	}
	return out
}

// Live drops tombstones.
func Live(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !r.Tombstone {
			out = append(out, r)
		}
	}
	return out
}

// Tombstone returns the record appended when r is revoked. It carries the same
// permission content under a fresh session ID.
func Tombstone(r Record, id string) Record {
	t := r.clone()
	t.SessionID = id
	t.Status = StatusRevoked
	t.Tombstone = true
	t.Revokes = r.SessionID
	return t
}

// selectOne applies the single-record lookup rules to live records and returns
// the index of the chosen record in records.
func selectOne(records []Record, p SearchParam) (int, error) {
	if p.IsEmpty() {
		return -1, ErrInvalidSearch
	}
	matched := -1
	n := 0
	for i, r := range records {
		if r.Tombstone || !Match(r, p) {
			continue
		}
		// Later records supersede earlier ones.
		matched = i
		n++
	}
	if n == 0 || (p.SessionID != "" && n > 1) {
		return -1, &SessionNotFoundError{Param: p, Matches: n}
	}
	return matched, nil
}
