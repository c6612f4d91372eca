package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapesAndScalars(t *testing.T) {
	assert := assert.New(t)

	s := Scalar(4.5)
	assert.True(s.IsScalar())
	assert.Equal(0, s.NDim())
	v, err := s.ScalarValue()
	assert.NoError(err)
	assert.Equal(4.5, v)

	m := New(2, 3)
	assert.Equal(6, m.Size())
	assert.Equal(2, m.NDim())
	_, err = m.ScalarValue()
	assert.Error(err)

	_, err = FromData([]int{2, 2}, []float64{1, 2, 3})
	assert.Error(err)

	d, err := FromData([]int{2, 2}, []float64{1, 2, 3, 4})
	assert.NoError(err)
	assert.Equal(10.0, d.SumAll())
}

func TestLeadIsView(t *testing.T) {
	assert := assert.New(t)

	m, err := FromData([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	assert.NoError(err)

	row, err := m.Lead(1)
	assert.NoError(err)
	assert.Equal([]int{3}, row.Shape)
	assert.Equal([]float64{4, 5, 6}, row.Data)

	row.Data[0] = 40
	assert.Equal(40.0, m.Data[3])

	_, err = m.Lead(2)
	assert.Error(err)
	_, err = Scalar(1).Lead(0)
	assert.Error(err)
}

func TestTileAndStack(t *testing.T) {
	assert := assert.New(t)

	base := FromSlice([]float64{1, 2})
	tiled := Tile(base, 3)
	assert.Equal([]int{3, 2}, tiled.Shape)
	for i := 0; i < 3; i++ {
		s, err := tiled.Lead(i)
		assert.NoError(err)
		assert.True(s.Equal(base))
	}

	st, err := Stack([]Tensor{Scalar(1), Scalar(2), Scalar(3)})
	assert.NoError(err)
	assert.Equal([]int{3}, st.Shape)
	assert.Equal([]float64{1, 2, 3}, st.Data)

	_, err = Stack(nil)
	assert.Error(err)
	_, err = Stack([]Tensor{Scalar(1), FromSlice([]float64{1, 2})})
	assert.Error(err)
}

func TestReshapeTranspose(t *testing.T) {
	assert := assert.New(t)

	m, err := FromData([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	assert.NoError(err)

	r, err := m.Reshape(3, 2)
	assert.NoError(err)
	assert.Equal([]int{3, 2}, r.Shape)
	_, err = m.Reshape(4)
	assert.Error(err)

	tr, err := m.Transpose01()
	assert.NoError(err)
	assert.Equal([]int{3, 2}, tr.Shape)
	assert.Equal([]float64{1, 4, 2, 5, 3, 6}, tr.Data)

	_, err = Scalar(1).Transpose01()
	assert.Error(err)
}

func TestSumTrailing(t *testing.T) {
	assert := assert.New(t)

	m, err := FromData([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	assert.NoError(err)

	s, err := m.SumTrailing(1)
	assert.NoError(err)
	assert.Equal([]int{2}, s.Shape)
	assert.Equal([]float64{6, 15}, s.Data)

	all, err := m.SumTrailing(0)
	assert.NoError(err)
	assert.Equal(21.0, all.Data[0])

	_, err = m.SumTrailing(3)
	assert.Error(err)
}
