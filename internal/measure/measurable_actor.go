package measure

import (
	"github.com/fill-tracker/internal/models"
	"github.com/fill-tracker/internal/types"
)

// MeasurableActor returns the side of the fill whose asset legs will be
// priced. Maker is preferred; taker is the fallback. A fill where neither
// side has legs has no measurable actor, which is terminal rather than an
// error.
func MeasurableActor(fill *models.Fill) (types.FillActor, bool) {
	for _, actor := range []types.FillActor{types.ActorMaker, types.ActorTaker} {
		if len(fill.AssetsForActor(actor)) > 0 {
			return actor, true
		}
	}
	return "", false
}
