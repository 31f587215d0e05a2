package dmath

// A Bitmap is a binary region mask over the image plane.
type Bitmap struct {
	stride int
	bits   []bool
}

func NewBitmap(w, h int) Bitmap {
	return Bitmap{
		stride: w,
		bits:   make([]bool, w*h),
	}
}

func (m Bitmap) Dx() int { return m.stride }
func (m Bitmap) Dy() int {
	if m.stride == 0 {
		return 0
	}
	return len(m.bits) / m.stride
}

func (m Bitmap) Set(x, y int, v bool) { m.bits[m.stride*y+x] = v }
func (m Bitmap) Get(x, y int) bool    { return m.bits[m.stride*y+x] }

func (m Bitmap) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

func (m Bitmap) Empty() bool {
	for _, b := range m.bits {
		if b {
			return false
		}
	}
	return true
}

// Union returns a new mask covering both regions.
func (m Bitmap) Union(o Bitmap) Bitmap {
	u := NewBitmap(m.Dx(), m.Dy())
	for i := range m.bits {
		u.bits[i] = m.bits[i] || o.bits[i]
	}
	return u
}

// Intersects reports whether the two masks share any pixel.
func (m Bitmap) Intersects(o Bitmap) bool {
	for i := range m.bits {
		if m.bits[i] && o.bits[i] {
			return true
		}
	}
	return false
}
