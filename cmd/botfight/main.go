// botfight runs one scripted single-player battle against the local
// resolver, submitting random moves until somebody wins. Handy as a
// smoke test of the whole session loop against a running arena.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
	"github.com/Cabritto-Corps/battlecore/internal/config"
	"github.com/Cabritto-Corps/battlecore/internal/gateway"
	"github.com/Cabritto-Corps/battlecore/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	characterID := os.Getenv("CHARACTER_ID")
	if characterID == "" {
		characterID = "char-ember"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gw := gateway.NewClient(cfg.ArenaURL, log)
	ctrl, err := session.StartBot(ctx, gw, characterID, session.DefaultConfig(), log)
	if err != nil {
		log.Fatal("could not start battle", zap.Error(err))
	}
	gw.PlayerID = ctrl.View().State.Player.ID

	submit := func() {
		moves := ctrl.View().State.Player.Moves
		ctrl.SubmitAttack(moves[rand.Intn(len(moves))].ID)
	}
	submit()

	for ev := range ctrl.Events() {
		switch ev.Type {
		case battle.EvtLogAppended:
			fmt.Println(ev.Entry)
		case battle.EvtTurnChanged:
			if ev.Side == battle.SidePlayer {
				submit()
			}
		case battle.EvtAttackRejected:
			log.Warn("attack rejected", zap.String("reason", ev.Reason))
		case battle.EvtBattleEnded:
			fmt.Printf("winner: %s\n", ev.Winner)
			ctrl.Teardown(ctx)
			return
		}
	}
}
