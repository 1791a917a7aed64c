package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/auth"
	"github.com/DigitalEpidemic/retro-tool-sub001/board"
	"github.com/DigitalEpidemic/retro-tool-sub001/presence"
	"github.com/DigitalEpidemic/retro-tool-sub001/realtime"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
	"github.com/DigitalEpidemic/retro-tool-sub001/stream"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	boardsTableName := os.Getenv("BOARDS_TABLE")
	cardsTableName := os.Getenv("CARDS_TABLE")
	usersTableName := os.Getenv("USERS_TABLE")
	eventsQueueName := os.Getenv("BOARD_EVENTS_QUEUE")
	if connStr == "" || boardsTableName == "" || cardsTableName == "" || usersTableName == "" || eventsQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, boardsTableName, cardsTableName, usersTableName, eventsQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(realtime.ParseOptions(redisConn))
	rt := realtime.NewStore(rc)

	testMode := os.Getenv("AUTH_TEST_MODE") == "1"
	var authn *auth.Auth
	if testMode {
		authn = auth.New(nil, "", "")
	} else {
		jwtAudience := os.Getenv("JWT_AUDIENCE")
		domain := os.Getenv("JWT_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		authn = auth.New(jwks, jwtAudience, "https://"+domain+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	hooks := realtime.NewDisconnectRegistry()
	pres := presence.NewManager(store, rt, hooks)
	boards := board.NewService(store, rt)
	stream.Register(e, boards, rt, pres, authn)

	listenAddr := ":9000"
	if val, ok := os.LookupEnv("BOARD_STREAM_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
