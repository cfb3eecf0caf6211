package memory

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// warpReproject moves raster metadata into the target CRS. The extent is
// reprojected corner by corner; the pixel grid size is kept.
func warpReproject(_ context.Context, req *adapter.Request, in inputs) (*dataset, error) {
	src := in.one(core.ParamInput)
	if src == nil || src.kind != core.LayerKindRaster {
		return nil, adapter.Unsupported("warp needs a raster input")
	}
	from := normalizeCRS(req.StringOr("SOURCE_CRS", src.raster.CRS))
	target := normalizeCRS(req.StringOr(core.ParamTargetCRS, core.DefaultCRS))
	move, err := transform(from, target)
	if err != nil {
		return nil, err
	}

	r := *src.raster
	r.CRS = target
	r.Resampling = req.StringOr("RESAMPLING", "nearest")
	if !r.Bound.IsZero() {
		corners := orb.MultiPoint{r.Bound.Min, r.Bound.Max}
		r.Bound = move(corners).Bound()
	}
	return &dataset{kind: core.LayerKindRaster, crs: target, raster: &r}, nil
}
