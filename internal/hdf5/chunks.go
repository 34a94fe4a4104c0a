package hdf5

// copyChunk scatters one decoded chunk into the row-major dataset buffer.
// Chunks on the upper edge of a dimension are stored at full size; the part
// outside the dataset is dropped.
func copyChunk(dst, chunk []byte, dims, chunkDims, offsets []uint64, elem int) {
	rank := len(dims)
	if rank == 0 {
		copy(dst, chunk[:elem])
		return
	}

	// Extent of the chunk actually inside the dataset.
	extent := make([]uint64, rank)
	for d := range extent {
		if offsets[d] >= dims[d] {
			return
		}
		extent[d] = min(chunkDims[d], dims[d]-offsets[d])
	}

	// Rows along the last dimension are contiguous in both buffers.
	rowBytes := int(extent[rank-1]) * elem
	idx := make([]uint64, rank-1)
	for {
		var src, dstOff uint64
		for d := 0; d < rank-1; d++ {
			src = src*chunkDims[d] + idx[d]
			dstOff = dstOff*dims[d] + offsets[d] + idx[d]
		}
		src = src * chunkDims[rank-1]
		dstOff = dstOff*dims[rank-1] + offsets[rank-1]

		s, t := int(src)*elem, int(dstOff)*elem
		copy(dst[t:t+rowBytes], chunk[s:s+rowBytes])

		// Odometer over the leading dimensions.
		d := rank - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < extent[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

// extractChunk gathers the chunk at offsets from the row-major dataset
// buffer, zero-filling the part outside the dataset.
func extractChunk(src []byte, dims, chunkDims, offsets []uint64, elem int) []byte {
	rank := len(dims)
	total := elem
	for _, c := range chunkDims {
		total *= int(c)
	}
	out := make([]byte, total)
	if rank == 0 {
		copy(out, src[:elem])
		return out
	}

	extent := make([]uint64, rank)
	for d := range extent {
		extent[d] = min(chunkDims[d], dims[d]-offsets[d])
	}

	rowBytes := int(extent[rank-1]) * elem
	idx := make([]uint64, rank-1)
	for {
		var c, s uint64
		for d := 0; d < rank-1; d++ {
			c = c*chunkDims[d] + idx[d]
			s = s*dims[d] + offsets[d] + idx[d]
		}
		c = c * chunkDims[rank-1]
		s = s*dims[rank-1] + offsets[rank-1]

		ci, si := int(c)*elem, int(s)*elem
		copy(out[ci:ci+rowBytes], src[si:si+rowBytes])

		d := rank - 2
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < extent[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return out
		}
	}
}
