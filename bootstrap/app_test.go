package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"appserver/api"
	"appserver/config"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type pingController struct{}

func (pingController) Path() string { return "/ping" }

func (pingController) Routes(r *mux.Router) {
	r.Handle("", api.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		api.WriteJSON(w, http.StatusOK, map[string]string{"pong": "true"})
		return nil
	})).Methods(http.MethodGet)
}

func clearDatabaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MONGO_USER", "")
	t.Setenv("MONGO_PASSWORD", "")
	t.Setenv("MONGO_PATH", "")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestNewApp(t *testing.T) {
	clearDatabaseEnv(t)
	port := freePort(t)

	app, err := NewApp(context.Background(),
		WithLogger(zap.NewNop().Sugar()),
		WithPort(port),
		WithControllers(pingController{}))
	require.NoError(t, err)
	defer app.Shutdown()

	assert.Equal(t, port, app.Config.Server.Port)
	assert.Equal(t, port, app.APIServer.Port())
	require.NotNil(t, app.Database)
	assert.Same(t, app.Database, app.APIServer.Database())

	// health controller first, then the caller's
	controllers := app.APIServer.Controllers()
	require.Len(t, controllers, 2)
	assert.IsType(t, &api.HealthController{}, controllers[0])
	assert.IsType(t, pingController{}, controllers[1])
}

func TestApp_StartServeShutdown(t *testing.T) {
	clearDatabaseEnv(t)
	port := freePort(t)

	core, logs := observer.New(zapcore.DebugLevel)
	app, err := NewApp(context.Background(),
		WithLogger(zap.New(core).Sugar()),
		WithPort(port),
		WithControllers(pingController{}))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/ping")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, logs.FilterMessage(fmt.Sprintf("App listening on the port %d", port)).Len())

	// missing credentials never stop the server; health reports them
	select {
	case <-app.Database.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("connection attempt did not finish")
	}
	assert.ErrorIs(t, app.Database.Err(), config.ErrMissingUser)

	// the watcher explains the failure once the attempt is over
	require.Eventually(t, func() bool {
		return logs.FilterMessageSnippet("Database user is not configured correctly").Len() == 1
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "unavailable", health["database"])
	assert.Equal(t, "not configured", health["error"])

	app.Shutdown()
	app.Shutdown()

	_, err = http.Get(base + "/api/ping")
	assert.Error(t, err, "server should be stopped")
	assert.Equal(t, 1, logs.FilterMessage("Shutdown complete").Len())
}

func TestApp_WaitForShutdown(t *testing.T) {
	t.Run("context done", func(t *testing.T) {
		clearDatabaseEnv(t)
		app, err := NewApp(context.Background(), WithLogger(zap.NewNop().Sugar()), WithPort(freePort(t)))
		require.NoError(t, err)
		defer app.Shutdown()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, app.WaitForShutdown(ctx))
	})

	t.Run("port in use", func(t *testing.T) {
		clearDatabaseEnv(t)
		ln, err := net.Listen("tcp", ":0")
		require.NoError(t, err)
		defer ln.Close()

		app, err := NewApp(context.Background(),
			WithLogger(zap.NewNop().Sugar()),
			WithPort(ln.Addr().(*net.TCPAddr).Port))
		require.NoError(t, err)
		defer app.Shutdown()

		require.NoError(t, app.Start(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = app.WaitForShutdown(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to listen on port")
	})
}

func TestApp_StartWithoutInit(t *testing.T) {
	app := &App{}
	assert.Error(t, app.Start(context.Background()))
}
