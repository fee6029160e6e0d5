package privacy

// Poseidon-style hashing over the suite's scalar field. Outputs are canonical
// 32-byte big-endian field elements. See PoseidonParams for the constant
// compatibility boundary.

// spongeWidth is the permutation width used by HashSponge (capacity 1, rate 2)
const spongeWidth = 3

// bytesPerChunk keeps packed byte chunks strictly below any 254-bit modulus
const bytesPerChunk = 31

// Permute applies the permutation to a state of exactly Width elements.
// Rounds are: RF/2 full, RP partial, RF/2 full. Each round adds the round
// constants, applies x⁵ to every lane (full) or lane 0 (partial), then
// multiplies by the MDS matrix.
func (pp *PoseidonParams) Permute(state []Element) ([]Element, error) {
	if len(state) != pp.width {
		return nil, ErrInvalidInput.WithDetails("state has %d lanes, width is %d", len(state), pp.width)
	}
	for _, e := range state {
		if !e.f.sameAs(pp.field) {
			return nil, ErrFieldMismatch
		}
	}

	s := make([]Element, pp.width)
	copy(s, state)
	next := make([]Element, pp.width)

	half := pp.fullRounds / 2
	total := pp.fullRounds + pp.partialRounds
	for r := 0; r < total; r++ {
		rc := pp.constants[r*pp.width : (r+1)*pp.width]
		for i := range s {
			s[i] = s[i].Add(rc[i])
		}
		if r < half || r >= half+pp.partialRounds {
			for i := range s {
				s[i] = sbox(s[i])
			}
		} else {
			s[0] = sbox(s[0])
		}
		for i := 0; i < pp.width; i++ {
			acc := pp.field.Zero()
			for j := 0; j < pp.width; j++ {
				acc = acc.Add(pp.mds[i][j].Mul(s[j]))
			}
			next[i] = acc
		}
		s, next = next, s
	}
	return s, nil
}

func sbox(x Element) Element {
	x2 := x.Square()
	x4 := x2.Square()
	return x4.Mul(x)
}

// Hash hashes 1 to PoseidonMaxWidth-1 elements with a single permutation of
// width len(inputs)+1. Lane 0 is the zero capacity lane and is the output.
func (s *Suite) Hash(inputs ...Element) (Element, error) {
	if len(inputs) == 0 || len(inputs) > PoseidonMaxWidth-1 {
		return Element{}, ErrInvalidInput.WithDetails("hash takes 1..%d inputs, got %d", PoseidonMaxWidth-1, len(inputs))
	}
	pp, err := s.Poseidon(len(inputs) + 1)
	if err != nil {
		return Element{}, err
	}
	state := make([]Element, len(inputs)+1)
	state[0] = s.curve.fr.Zero()
	copy(state[1:], inputs)
	out, err := pp.Permute(state)
	if err != nil {
		return Element{}, err
	}
	return out[0], nil
}

// HashSponge absorbs any number of elements two at a time into a width-3
// sponge. The capacity lane starts at len(inputs)·2⁶⁴ + 1 so that inputs of
// different lengths never share an initial state.
func (s *Suite) HashSponge(inputs []Element) (Element, error) {
	pp, err := s.Poseidon(spongeWidth)
	if err != nil {
		return Element{}, err
	}
	fr := s.curve.fr
	two64 := fr.FromUint64(1 << 32).Square()
	capacity := fr.FromUint64(uint64(len(inputs))).Mul(two64).Add(fr.One())

	state := []Element{capacity, fr.Zero(), fr.Zero()}
	if len(inputs) == 0 {
		out, err := pp.Permute(state)
		if err != nil {
			return Element{}, err
		}
		return out[0], nil
	}
	for i := 0; i < len(inputs); i += spongeWidth - 1 {
		for lane := 1; lane < spongeWidth; lane++ {
			if i+lane-1 >= len(inputs) {
				break
			}
			in := inputs[i+lane-1]
			if !in.f.sameAs(fr) {
				return Element{}, ErrFieldMismatch
			}
			state[lane] = state[lane].Add(in)
		}
		state, err = pp.Permute(state)
		if err != nil {
			return Element{}, err
		}
	}
	return state[0], nil
}

// HashBytes packs data into 31-byte big-endian chunks and hashes them with
// the sponge. The byte length is absorbed first so trailing zero bytes are
// significant.
func (s *Suite) HashBytes(data []byte) (Element, error) {
	fr := s.curve.fr
	elements := make([]Element, 0, 1+(len(data)+bytesPerChunk-1)/bytesPerChunk)
	elements = append(elements, fr.FromUint64(uint64(len(data))))
	buf := make([]byte, ElementSize)
	for off := 0; off < len(data); off += bytesPerChunk {
		end := off + bytesPerChunk
		if end > len(data) {
			end = len(data)
		}
		for i := range buf {
			buf[i] = 0
		}
		copy(buf[ElementSize-(end-off):], data[off:end])
		e, err := fr.FromBytes(buf)
		if err != nil {
			return Element{}, err
		}
		elements = append(elements, e)
	}
	return s.HashSponge(elements)
}
