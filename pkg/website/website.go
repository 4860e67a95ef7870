// Package website contains the service delivering the website
package website

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sort"
	"sync"
	"text/template"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/gorilla/mux"
	"github.com/tdewolff/minify"
	"github.com/tdewolff/minify/html"
	uberatomic "go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrServerAlreadyStarted = errors.New("server was already started")
	EnablePprof             = os.Getenv("PPROF") == "1"
)

// DefaultRefreshInterval is how often the status page is rebuilt.
const DefaultRefreshInterval = 10 * time.Second

type WebserverOpts struct {
	ListenAddress string
	Network       string
	MinStake      types.Amount

	Registry *registry.Registry
	Reporter *reporter.Reporter
	Bus      *bus.Bus
	Log      *zap.SugaredLogger

	ShowConfigDetails bool
	LinkMonitorAPI    string

	RefreshInterval time.Duration
}

type Webserver struct {
	opts *WebserverOpts
	log  *zap.SugaredLogger

	registry *registry.Registry
	reporter *reporter.Reporter
	bus      *bus.Bus

	srv        *http.Server
	srvStarted uberatomic.Bool

	indexTemplate    *template.Template
	statusHTMLData   StatusHTMLData
	rootResponseLock sync.RWMutex

	htmlDefault *[]byte

	minifier *minify.M
}

func NewWebserver(opts *WebserverOpts) (*Webserver, error) {
	var err error

	minifier := minify.New()
	minifier.AddFunc("text/css", html.Minify)
	minifier.AddFunc("text/html", html.Minify)

	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}

	server := &Webserver{
		opts:     opts,
		log:      opts.Log,
		registry: opts.Registry,
		reporter: opts.Reporter,
		bus:      opts.Bus,

		htmlDefault: &[]byte{},

		minifier: minifier,
	}

	server.indexTemplate, err = ParseIndexTemplate()
	if err != nil {
		return nil, err
	}

	server.statusHTMLData = StatusHTMLData{
		Network:           opts.Network,
		MinStake:          toUnits(opts.MinStake),
		Status:            &types.Status{},
		ShowConfigDetails: opts.ShowConfigDetails,
		LinkMonitorAPI:    opts.LinkMonitorAPI,
	}

	return server, nil
}

// StartServer serves the status page until ctx is done, rebuilding it in the background.
func (srv *Webserver) StartServer(ctx context.Context) (err error) {
	if srv.srvStarted.Swap(true) {
		return ErrServerAlreadyStarted
	}

	// Start background task to regularly update status HTML data
	go func() {
		ticker := time.NewTicker(srv.opts.RefreshInterval)
		defer ticker.Stop()
		for {
			srv.updateHTML(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	srv.srv = &http.Server{
		Addr:    srv.opts.ListenAddress,
		Handler: srv.getRouter(),

		ReadTimeout:       600 * time.Millisecond,
		ReadHeaderTimeout: 400 * time.Millisecond,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       3 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.srv.Shutdown(shutdownCtx); err != nil {
			srv.log.Warnw("could not shut down webserver", "error", err)
		}
	}()

	err = srv.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (srv *Webserver) getRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", srv.handleRoot).Methods(http.MethodGet)
	if EnablePprof {
		srv.log.Info("pprof API enabled")
		r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	}

	withGz := gziphandler.GzipHandler(r)
	return withGz
}

func (srv *Webserver) updateHTML(ctx context.Context) {
	// Fetch the registry aggregate.
	_status, err := srv.registry.Status(ctx)
	if err != nil {
		srv.log.Errorw("error getting status", "error", err)
		_status = &types.Status{}
	}

	// Fetch per operator reports.
	_operatorsReport, err := srv.reporter.GetOperatorsReport(ctx)
	if err != nil {
		srv.log.Errorw("error getting operators report", "error", err)
	}
	_violationStats, err := srv.reporter.GetViolationStats(ctx)
	if err != nil {
		srv.log.Errorw("error getting violation stats", "error", err)
	}

	var _violationsByType []ViolationCount
	if _violationStats != nil {
		for kind, count := range _violationStats.ByType {
			_violationsByType = append(_violationsByType, ViolationCount{Kind: string(kind), Count: count})
		}
		sort.Slice(_violationsByType, func(i, j int) bool { return _violationsByType[i].Kind < _violationsByType[j].Kind })
	}

	data := srv.statusHTMLData
	data.Status = _status
	data.OperatorsReport = _operatorsReport
	data.ViolationStats = _violationStats
	data.ViolationsByType = _violationsByType
	if srv.bus != nil {
		data.BusStats = srv.bus.GetStats()
	}
	data.UpdatedAt = time.Now().UTC().Format(time.RFC1123)

	// Now generate the HTML
	htmlDefault := bytes.Buffer{}

	// default view
	if err := srv.indexTemplate.Execute(&htmlDefault, data); err != nil {
		srv.log.Errorw("error rendering template", "error", err)
		return
	}

	// Minify
	htmlDefaultBytes, err := srv.minifier.Bytes("text/html", htmlDefault.Bytes())
	if err != nil {
		srv.log.Errorw("error minifying htmlDefault", "error", err)
		return
	}

	// Swap the html pointers
	srv.rootResponseLock.Lock()
	srv.htmlDefault = &htmlDefaultBytes
	srv.rootResponseLock.Unlock()
}

func (srv *Webserver) handleRoot(w http.ResponseWriter, req *http.Request) {
	var err error

	srv.rootResponseLock.RLock()
	defer srv.rootResponseLock.RUnlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = w.Write(*srv.htmlDefault)
	if err != nil {
		srv.log.Error("error writing template")
	}
}
