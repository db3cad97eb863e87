package backend

import (
	"context"
	"log/slog"

	"gioui.org/app"
	"git.sr.ht/~gioverse/skel/stream"
)

// WindowState pairs the application's backend with the stream controller of
// one window.
type WindowState struct {
	Bundle
	Controller *stream.Controller
}

func NewWindowState(ctx context.Context, bundle Bundle, win *app.Window) WindowState {
	return WindowState{
		Bundle:     bundle,
		Controller: stream.NewController(ctx, win.Invalidate),
	}
}

// Bundle holds the backend services shared by the UI.
type Bundle struct {
	Client     *Client
	Metrics    *Metrics
	Datasource *Datasource
	Logger     *slog.Logger
}

// NewBundle wires a datasource to client and the feeds built by newFeed.
// invalidate is called whenever live entries are waiting to be read.
func NewBundle(appCtx context.Context, client *Client, newFeed func() Feed, metrics *Metrics, logger *slog.Logger, invalidate func()) Bundle {
	return Bundle{
		Client:     client,
		Metrics:    metrics,
		Datasource: NewDatasource(appCtx, client, newFeed, logger, invalidate),
		Logger:     logger,
	}
}
