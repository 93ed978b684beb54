package geosample

import (
	"fmt"

	"github.com/twpayne/go-proj/v10"
)

// A Projection creates Transformers between CRSs.
type Projection interface {
	NewTransformer(srcCRS, dstCRS string) (Transformer, error)
}

// A Transformer transforms coordinates from one CRS to another. Coordinates
// are always in (x, y) order, i.e. (longitude, latitude) or (easting,
// northing), regardless of the axis order defined by the CRS.
type Transformer interface {
	Forward(x, y float64) (float64, float64, error)
}

// PROJ is a Projection backed by PROJ.
type PROJ struct{}

type projTransformer struct {
	pj *proj.PJ
}

// NewTransformer returns a new Transformer from srcCRS to dstCRS.
func (PROJ) NewTransformer(srcCRS, dstCRS string) (Transformer, error) {
	pj, err := proj.NewCRSToCRS(srcCRS, dstCRS, nil)
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", srcCRS, dstCRS, err)
	}
	normalizedPJ, err := pj.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", srcCRS, dstCRS, err)
	}
	return &projTransformer{
		pj: normalizedPJ,
	}, nil
}

func (t *projTransformer) Forward(x, y float64) (float64, float64, error) {
	coord, err := t.pj.Forward(proj.NewCoord(x, y, 0, 0))
	if err != nil {
		return 0, 0, err
	}
	return coord[0], coord[1], nil
}

// TransformPoint transforms (x, y) from srcCRS to dstCRS.
func TransformPoint(projection Projection, srcCRS, dstCRS string, x, y float64) (float64, float64, error) {
	transformer, err := projection.NewTransformer(srcCRS, dstCRS)
	if err != nil {
		return 0, 0, err
	}
	return transformer.Forward(x, y)
}
