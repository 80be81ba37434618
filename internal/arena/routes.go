package arena

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Hub) http.Handler {
	r := chi.NewRouter()

	r.Post("/battles", StartBattle(h))
	r.Post("/battles/{battleID}/attack", SubmitAttack(h))
	r.Get("/battles/{battleID}", BattleSnapshot(h))
	r.Post("/battles/{battleID}/end", EndBattle(h))
	r.Get("/realtime", RealtimeHandler(h))
	r.Get("/healthz", Healthz)
	return r
}
