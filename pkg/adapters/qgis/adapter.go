// Package qgis provides a geoprocessing engine that forwards operations to a
// remote QGIS processing service.
//
// Layers live as objects in an S3-compatible bucket. For each operation the
// bridge presigns a GET URL per input object and a PUT URL for the output
// object; the service downloads, runs the algorithm and uploads the result
// itself.
package qgis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/adapters/geojsonio"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// OutputKey is the algorithm output every operation writes.
const OutputKey = "OUTPUT"

// Object extensions for produced layers.
const (
	VectorExt = ".fgb"
	RasterExt = ".tif"
)

// processPath is appended to the service URL.
const processPath = "/run_qgis_process"

// Metadata keys set on layers this engine owns.
const (
	MetaEngine = "engine"
	MetaBucket = "bucket"
	MetaObject = "object"
)

var rasterExts = map[string]bool{".tif": true, ".tiff": true, ".vrt": true, ".img": true}

// Adapter implements adapter.Engine for a QGIS processing service.
type Adapter struct {
	Logger *slog.Logger

	mu     sync.RWMutex
	url    string
	params *Params
	store  objectStore
	client *http.Client
}

var (
	_ adapter.Engine    = (*Adapter)(nil)
	_ adapter.Importer  = (*Adapter)(nil)
	_ adapter.Exporter  = (*Adapter)(nil)
	_ adapter.Discarder = (*Adapter)(nil)
)

// New creates a new QGIS bridge.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{Logger: logger}
}

// Connect validates the config and builds the object store client.
// No request reaches the processing service until the first Execute.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return errors.New("qgis: processing service url is required")
	}
	p, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}
	store, err := newMinioStore(p)
	if err != nil {
		return err
	}
	if p.CreateBucket {
		if err := store.ensureBucket(ctx, p.Region); err != nil {
			return err
		}
	}
	a.connect(strings.TrimRight(cfg.URL, "/"), p, store, &http.Client{Timeout: p.Timeout})
	a.Logger.Debug("qgis bridge ready",
		slog.String("url", cfg.URL),
		slog.String("endpoint", p.Endpoint),
		slog.String("bucket", p.Bucket))
	return nil
}

func (a *Adapter) connect(url string, p *Params, store objectStore, client *http.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.url, a.params, a.store, a.client = url, p, store, client
}

// Close releases the HTTP client's idle connections.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
	a.store = nil
	return nil
}

func (a *Adapter) state() (string, *Params, objectStore, *http.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.store == nil {
		return "", nil, nil, nil, adapter.Failure(nil, "qgis engine is not connected")
	}
	return a.url, a.params, a.store, a.client, nil
}

type processRequest struct {
	AlgorithmID   string            `json:"algorithm_id"`
	Inputs        map[string]any    `json:"qgis_inputs"`
	InputURLs     map[string]any    `json:"input_urls"`
	OutputPutURLs map[string]string `json:"output_presigned_put_urls"`
}

type uploadResult struct {
	Uploaded bool   `json:"uploaded"`
	Error    string `json:"error,omitempty"`
}

type processResponse struct {
	UploadResults map[string]uploadResult `json:"upload_results"`
}

// Execute forwards one operation to the processing service.
func (a *Adapter) Execute(ctx context.Context, req *adapter.Request) (*core.Layer, error) {
	url, p, store, client, err := a.state()
	if err != nil {
		return nil, err
	}

	inputURLs := make(map[string]any, len(req.Inputs))
	for param, layers := range req.Inputs {
		urls := make([]string, 0, len(layers))
		for _, l := range layers {
			if l.Location == "" {
				return nil, adapter.NotFound(l.ID)
			}
			u, err := store.PresignGet(ctx, l.Location, p.Expiry)
			if err != nil {
				return nil, adapter.Failure(err, "presigning input %s", l.ID)
			}
			urls = append(urls, u)
		}
		if param == core.ParamLayers {
			inputURLs[param] = urls
		} else if len(urls) > 0 {
			inputURLs[param] = urls[0]
		}
	}

	kind := outputKind(req.Operation)
	key := objectKey(p.Prefix, req.OutputID, kind)
	putURL, err := store.PresignPut(ctx, key, p.Expiry)
	if err != nil {
		return nil, adapter.Failure(err, "presigning output %s", req.OutputID)
	}

	body, err := json.Marshal(processRequest{
		AlgorithmID:   req.AlgorithmID,
		Inputs:        wireParams(req.Params),
		InputURLs:     inputURLs,
		OutputPutURLs: map[string]string{OutputKey: putURL},
	})
	if err != nil {
		return nil, adapter.Failure(err, "encoding request")
	}

	a.Logger.Debug("running qgis algorithm",
		slog.String("algorithm", req.AlgorithmID),
		slog.String("output", key))

	resp, err := a.post(ctx, client, url+processPath, body)
	if err != nil {
		return nil, err
	}
	res, ok := resp.UploadResults[OutputKey]
	if !ok || !res.Uploaded {
		msg := "output was not uploaded"
		if res.Error != "" {
			msg += ": " + res.Error
		}
		return nil, adapter.Failure(nil, "%s %s", req.AlgorithmID, msg)
	}

	return &core.Layer{
		ID:           req.OutputID,
		Kind:         kind,
		GeometryType: outputGeometry(req, kind),
		CRS:          outputCRS(req),
		Location:     key,
		Metadata: map[string]string{
			MetaEngine: "qgis",
			MetaBucket: store.Bucket(),
			MetaObject: key,
		},
	}, nil
}

func (a *Adapter) post(ctx context.Context, client *http.Client, url string, body []byte) (*processResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, adapter.Failure(err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, adapter.Failure(err, "calling processing service")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, adapter.Failure(err, "reading processing response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyResponse(resp.StatusCode, data)
	}

	var out processResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, adapter.Failure(err, "decoding processing response")
	}
	return &out, nil
}

// classifyResponse maps a non-200 service reply to an engine error.
func classifyResponse(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Detail != "":
			msg = payload.Detail
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid geometr"), strings.Contains(lower, "topologyexception"):
		return adapter.InvalidGeometry("%s", msg)
	case status == http.StatusNotFound && strings.Contains(lower, "algorithm"):
		return adapter.Unsupported("%s", msg)
	default:
		return adapter.Failure(nil, "processing service returned %d: %s", status, msg)
	}
}

// wireParams stringifies scalar parameters; arrays stay lists.
func wireParams(params map[string]core.Value) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if v.Type == core.TypeStringArray {
			out[k] = v.Strings()
			continue
		}
		out[k] = v.String()
	}
	return out
}

func outputKind(op core.Operation) core.LayerKind {
	if op == core.OpWarpReproject {
		return core.LayerKindRaster
	}
	return core.LayerKindVector
}

func objectKey(prefix, id string, kind core.LayerKind) string {
	ext := VectorExt
	if kind == core.LayerKindRaster {
		ext = RasterExt
	}
	return prefix + id + ext
}

func firstInput(req *adapter.Request) *core.Layer {
	if l := req.Input(core.ParamInput); l != nil {
		return l
	}
	return req.Input(core.ParamLayers)
}

func outputCRS(req *adapter.Request) string {
	switch req.Operation {
	case core.OpReprojectLayer, core.OpWarpReproject:
		return core.NormalizeCRS(req.StringOr(core.ParamTargetCRS, core.DefaultCRS))
	case core.OpMergeVectorLayers:
		if crs, ok := req.String("CRS"); ok && crs != "" {
			return core.NormalizeCRS(crs)
		}
	}
	if in := firstInput(req); in != nil {
		return in.CRS
	}
	return core.DefaultCRS
}

// outputGeometry derives the produced geometry type from the operation,
// since the service reports only the upload outcome.
func outputGeometry(req *adapter.Request, kind core.LayerKind) core.GeometryType {
	if kind == core.LayerKindRaster {
		return ""
	}
	in := core.GeometryUnknown
	if l := firstInput(req); l != nil {
		in = l.GeometryType
	}
	switch req.Operation {
	case core.OpBuffer:
		return core.GeometryMultiPolygon
	case core.OpAggregate, core.OpDissolve:
		return in.Multi()
	case core.OpStatisticsByCategories:
		return core.GeometryNone
	case core.OpGeometryByExpression:
		switch strings.ToLower(req.StringOr("OUTPUT_GEOMETRY", "polygon")) {
		case "point":
			return core.GeometryPoint
		case "line":
			return core.GeometryLineString
		default:
			return core.GeometryPolygon
		}
	default:
		return in
	}
}

// Import uploads a local file into the bucket.
func (a *Adapter) Import(ctx context.Context, id, src string) (*core.Layer, error) {
	_, p, store, _, err := a.state()
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		return nil, adapter.Unsupported("cannot import %s: no file extension", src)
	}
	if _, err := os.Stat(src); err != nil {
		return nil, adapter.Failure(err, "importing %s", src)
	}

	l := &core.Layer{
		ID:           id,
		Name:         geojsonio.LayerName(src),
		Kind:         core.LayerKindVector,
		GeometryType: core.GeometryUnknown,
		CRS:          core.DefaultCRS,
	}
	switch {
	case rasterExts[ext]:
		l.Kind = core.LayerKindRaster
		l.GeometryType = ""
	case ext == ".geojson" || ext == ".json":
		fc, err := geojsonio.Read(src)
		if err != nil {
			return nil, adapter.Failure(err, "importing %s", src)
		}
		l.GeometryType = geojsonio.GeometryType(fc)
		l.FeatureCount = int64(len(fc.Features))
		l.CRS = geojsonio.CollectionCRS(fc)
		l.Fields = geojsonio.FieldNames(fc)
	}

	key := p.Prefix + id + ext
	if err := store.Upload(ctx, key, src); err != nil {
		return nil, adapter.Failure(err, "importing %s", src)
	}
	l.Location = key
	l.Metadata = map[string]string{MetaEngine: "qgis", MetaBucket: store.Bucket(), MetaObject: key}
	return l, nil
}

// Export downloads the layer's object. A directory path receives
// <id><object extension>.
func (a *Adapter) Export(ctx context.Context, l *core.Layer, dst string) (string, error) {
	_, _, store, _, err := a.state()
	if err != nil {
		return "", err
	}
	if l.Location == "" {
		return "", adapter.NotFound(l.ID)
	}
	out := geojsonio.OutputPath(dst, l.ID, path.Ext(l.Location))
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", adapter.Failure(err, "exporting %s", l.ID)
	}
	if err := store.Download(ctx, l.Location, out); err != nil {
		return "", adapter.Failure(err, "exporting %s", l.ID)
	}
	return out, nil
}

// Discard removes the layer's object. Layers without one are ignored.
func (a *Adapter) Discard(ctx context.Context, l *core.Layer) error {
	_, _, store, _, err := a.state()
	if err != nil || l.Location == "" {
		return nil
	}
	if err := store.Remove(ctx, l.Location); err != nil {
		a.Logger.Warn("failed to remove object",
			slog.String("layer", l.ID),
			slog.String("object", l.Location),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
