package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/archive"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/orders"
	"github.com/joseph-ayodele/order-intake/internal/repository"
	"github.com/joseph-ayodele/order-intake/internal/tms"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// stubExtractor names documents after their file.
type stubExtractor struct{ fail map[string]error }

func (s stubExtractor) Extract(_ context.Context, path string) (entity.Document, error) {
	name := filepath.Base(path)
	doc := entity.Document{Path: path, Name: name, BOLHint: strings.TrimSuffix(name, filepath.Ext(name))}
	return doc, s.fail[name]
}

// stubParser returns a fresh copy of the record registered for the BOL hint.
type stubParser map[string]entity.OrderRecord

func (p stubParser) Parse(doc entity.Document) (*entity.OrderRecord, error) {
	rec, ok := p[doc.BOLHint]
	if !ok {
		return nil, fmt.Errorf("unrecoverable table shape")
	}
	rec.OriginFile = doc.Name
	return &rec, nil
}

type stubFallback struct {
	frags map[constants.StopRole]entity.AddressFragment
	calls int
}

func (f *stubFallback) Fragments(context.Context, entity.Document) (map[constants.StopRole]entity.AddressFragment, error) {
	f.calls++
	return f.frags, nil
}

func order(bol, dropoff string) entity.OrderRecord {
	return entity.OrderRecord{
		BOL:         bol,
		ConsRef:     "PO-" + bol,
		CustomerID:  "GRAMIA",
		OrderedDate: "06/01/2024",
		Commodity:   "FOOD-ING",
		Pickup:      entity.Stop{Role: constants.Pickup, Address: "4815 55TH ST MUSCATINE IA 52761", State: "IA", Date: "06/01/2024"},
		Dropoff:     entity.Stop{Role: constants.Dropoff, Address: dropoff, Date: "06/03/2024"},
	}
}

type fakeTMS struct {
	createStatus atomic.Int32
	creates      atomic.Int32
	autorates    atomic.Int32
}

func (f *fakeTMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/orders/create":
		f.creates.Add(1)
		var p tms.OrderPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if code := int(f.createStatus.Load()); code != 0 && code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = io.WriteString(w, "internal failure")
			return
		}
		fmt.Fprintf(w, `{"id":"ORD-%s","blnum":"%s","consignee_refno":"%s","customer_id":"%s","shipper_stop_id":"S1-%s","consignee_stop_id":"S2-%s"}`,
			p.BLNum, p.BLNum, p.ConsigneeRefNo, p.CustomerID, p.BLNum, p.BLNum)
	case strings.HasPrefix(r.URL.Path, "/orders/autorate/"):
		f.autorates.Add(1)
		_, _ = io.WriteString(w, `{"total_charge": 987.6}`)
	default:
		http.NotFound(w, r)
	}
}

type env struct {
	db       *repository.DB
	orders   repository.OrderRepository
	inbox    string
	tms      *fakeTMS
	strategy *Strategy
	parser   stubParser
	fallback *stubFallback
	orch     *Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, ":memory:", true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repository.Close(db, nil) })

	tables := repository.DefaultTables()
	e := &env{
		db:     db,
		orders: repository.NewOrderRepository(db, tables.Orders, quiet()),
		inbox:  t.TempDir(),
		tms:    &fakeTMS{},
		parser: stubParser{},
	}
	srv := httptest.NewServer(e.tms)
	t.Cleanup(srv.Close)

	e.seedLocation(t, "KENMIA", "KENT CORP", "4815 55TH ST", "MUSCATINE", "IA", "52761")
	e.seedLocation(t, "MAINGA", "MAIN DC", "1200 MAIN ST", "ATLANTA", "GA", "30301")

	pc := orders.PayloadConfig{CompanyID: "TMS", TZOffset: "-0600", IntraCustomer: "GRAMIA"}
	e.strategy = &Strategy{
		Category:   constants.Grain,
		CustomerID: "GRAMIA",
		Paths:      common.CategoryPaths{Inbox: e.inbox},
		Extract:    stubExtractor{},
		Parse:      e.parser,
		BuildPayload: func(rec *entity.OrderRecord) (*tms.OrderPayload, error) {
			return orders.BuildPayload(rec, pc)
		},
		Archiver: archive.NewLocal(filepath.Join(e.inbox, "imaging"), quiet()),
	}
	e.fallback = &stubFallback{}
	e.orch = New(Deps{
		Orders:    e.orders,
		Locations: repository.NewLocationRepository(db, tables.Locations, quiet()),
		Remote:    repository.NewTMSRepository(db, tables, "TMS", quiet()),
		API:       tms.NewClient(tms.ClientConfig{BaseURL: srv.URL, Username: "u", Password: "p", CompanyID: "TMS"}, srv.Client(), quiet()),
		Fallback:  e.fallback,
	}, map[constants.Category]*Strategy{constants.Grain: e.strategy}, quiet())
	return e
}

func (e *env) exec(t *testing.T, q string, args []any) {
	t.Helper()
	var res entsql.Result
	if err := e.db.Driver.Exec(context.Background(), q, args, &res); err != nil {
		t.Fatal(err)
	}
}

func (e *env) seedLocation(t *testing.T, id, name, addr, city, state, zip string) {
	t.Helper()
	b := entsql.Dialect(e.db.Dialect())
	q, args := b.Insert(repository.DefaultTables().Locations).
		Columns("id", "name", "address1", "city_name", "state", "zip_code", "saturday_open", "saturday_close", "monday_open", "monday_close").
		Values(id, name, addr, city, state, zip, "07:00", "15:30", "06:00", "18:00").
		Query()
	e.exec(t, q, args)
}

func (e *env) addDocument(t *testing.T, rec entity.OrderRecord) {
	t.Helper()
	e.parser[rec.BOL] = rec
	if err := os.WriteFile(filepath.Join(e.inbox, rec.BOL+".pdf"), []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func (e *env) count(t *testing.T, table string) int {
	t.Helper()
	b := entsql.Dialect(e.db.Dialect())
	q, args := b.Select("COUNT(*)").From(b.Table(table)).Query()
	rows := &entsql.Rows{}
	if err := e.db.Driver.Query(context.Background(), q, args, rows); err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var n int
	if !rows.Next() || rows.Scan(&n) != nil {
		t.Fatalf("count %s", table)
	}
	return n
}

func (e *env) stored(t *testing.T, bol string) *entity.OrderRecord {
	t.Helper()
	rec, err := e.orders.FindByBOL(context.Background(), bol)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

// requireLedgeredRowsHeld checks that every ledgered BOL has a stored row in a
// flagged or held status with a description an operator can act on.
func (e *env) requireLedgeredRowsHeld(t *testing.T, rep entity.BatchReport) {
	t.Helper()
	for _, f := range rep.Failures() {
		got, err := e.orders.FindByBOL(context.Background(), f.BOL)
		if err != nil {
			t.Fatalf("ledgered %s has no row: %v", f.BOL, err)
		}
		switch got.Status {
		case constants.StatusFlagged, constants.StatusCreated, constants.StatusAutorated:
		default:
			t.Fatalf("ledgered %s left in %s", f.BOL, got.Status)
		}
		if got.StatusDesc == "" {
			t.Fatalf("ledgered %s has an empty status_desc", f.BOL)
		}
	}
}

func TestScenarioNewDocumentIsProcessed(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID1", "1200 MAIN ST ATLANTA GA"))

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Documents() != 1 || rep.Submitted() != 1 || rep.Failed() != 0 {
		t.Fatalf("report = %s", rep.Summary())
	}
	want := "grain: Total orders in folder: 1, Files processed (parsed): 1, Orders already processed (parsed): 0, Existing orders in LME API: 0, Successful LME API posts: 1, Failed orders: 0"
	if rep.Summary() != want {
		t.Fatalf("summary = %q", rep.Summary())
	}
	posted := rep.Posted()
	if len(posted) != 1 || posted[0].OrderID != "ORD-1LID1" || posted[0].Rate != "987.60" {
		t.Fatalf("posted = %+v", posted)
	}

	got := e.stored(t, "1LID1")
	if got.Status != constants.StatusProcessed || !got.IsProcessed {
		t.Fatalf("row = %s processed=%v", got.Status, got.IsProcessed)
	}
	if got.Pickup.Location == nil || got.Pickup.Location.Code != "KENMIA" || got.Dropoff.Location.Code != "MAINGA" {
		t.Fatalf("locations = %+v / %+v", got.Pickup.Location, got.Dropoff.Location)
	}
	if got.Pickup.Window != "20240601070000-0600|20240601153000-0600" {
		t.Fatalf("pickup window = %q", got.Pickup.Window)
	}
	if got.Dropoff.Window != "20240603060000-0600|20240603180000-0600" {
		t.Fatalf("dropoff window = %q", got.Dropoff.Window)
	}
	if n := e.count(t, repository.DefaultTables().ReferenceNumber); n != 2 {
		t.Fatalf("references = %d", n)
	}
	if _, err := os.Stat(filepath.Join(e.inbox, "imaging", "1LID1.pdf")); err != nil {
		t.Fatalf("document not archived: %v", err)
	}
	if e.fallback.calls != 0 {
		t.Fatal("fallback used for resolvable stops")
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID2", "1200 MAIN ST ATLANTA GA"))
	if _, err := e.orch.Run(context.Background(), constants.Grain); err != nil {
		t.Fatal(err)
	}
	// the operator drops the same document back into the inbox
	e.addDocument(t, order("1LID2", "1200 MAIN ST ATLANTA GA"))

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.AlreadyReconciled() != 1 || rep.Submitted() != 0 || rep.Failed() != 0 {
		t.Fatalf("report = %s", rep.Summary())
	}
	if e.tms.creates.Load() != 1 {
		t.Fatalf("creates = %d", e.tms.creates.Load())
	}
	if got := e.stored(t, "1LID2"); got.Status != constants.StatusProcessed {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestScenarioOverrideAddress(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID3", "445 HURRICANE TRAIL DACULA GA"))

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Failed() != 0 || rep.Submitted() != 1 {
		t.Fatalf("report = %s failures=%v", rep.Summary(), rep.Failures())
	}
	got := e.stored(t, "1LID3")
	if got.Dropoff.Location == nil || got.Dropoff.Location.Code != "PUBDGA" {
		t.Fatalf("dropoff = %+v", got.Dropoff.Location)
	}
	if got.Dropoff.Window != "20240603000100-0600|20240603235900-0600" {
		t.Fatalf("override window = %q", got.Dropoff.Window)
	}
}

func TestFallbackClearsNotFound(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID4", "UNREADABLE SMUDGE"))
	e.fallback.frags = map[constants.StopRole]entity.AddressFragment{
		constants.Dropoff: {Company: "PUBLIX", Address: "445 HURRICANE TRAIL", City: "DACULA", State: "GA", Zip: "30019"},
	}

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if e.fallback.calls != 1 {
		t.Fatalf("fallback calls = %d", e.fallback.calls)
	}
	if rep.Failed() != 0 || rep.Submitted() != 1 {
		t.Fatalf("report = %s failures=%v", rep.Summary(), rep.Failures())
	}
	got := e.stored(t, "1LID4")
	if got.Dropoff.Address != "445 HURRICANE TRAIL DACULA GA" || got.Dropoff.Location.Code != "PUBDGA" {
		t.Fatalf("dropoff = %q %+v", got.Dropoff.Address, got.Dropoff.Location)
	}
}

func TestUnresolvedStopIsFlaggedWithDefaultWindow(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID5", "99 NOWHERE RD SPRINGFIELD ZZ"))

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	fails := rep.Failures()
	if len(fails) != 1 || fails[0].BOL != "1LID5" || !strings.Contains(fails[0].Messages[0], "location code not found for SO") {
		t.Fatalf("failures = %+v", fails)
	}
	e.requireLedgeredRowsHeld(t, rep)
	got := e.stored(t, "1LID5")
	if got.Status != constants.StatusFlagged || got.StatusDesc == "" {
		t.Fatalf("row = %s %q", got.Status, got.StatusDesc)
	}
	if got.Dropoff.Window != "20240603000000-0600|20240603235900-0600" {
		t.Fatalf("default window = %q", got.Dropoff.Window)
	}
	if e.tms.creates.Load() != 0 {
		t.Fatal("flagged row submitted")
	}
}

func TestScenarioAlreadyInRemote(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID6", "1200 MAIN ST ATLANTA GA"))
	b := entsql.Dialect(e.db.Dialect())
	q, args := b.Insert(repository.DefaultTables().RemoteOrders).
		Columns("id", "blnum", "shipper_stop_id", "consignee_stop_id").
		Values("ORD-OLD", "1LID6", "S1", "S2").
		Query()
	e.exec(t, q, args)

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.AlreadyInRemote() != 1 || rep.Submitted() != 0 || rep.Failed() != 0 {
		t.Fatalf("report = %s", rep.Summary())
	}
	if e.tms.creates.Load() != 0 {
		t.Fatal("create issued for an order already in the TMS")
	}
}

func TestScenarioCreateFails(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID7", "1200 MAIN ST ATLANTA GA"))
	e.tms.createStatus.Store(http.StatusInternalServerError)

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	fails := rep.Failures()
	if len(fails) != 1 || len(fails[0].Messages) != 1 || fails[0].Messages[0] != "API error 500: internal failure" {
		t.Fatalf("failures = %+v", fails)
	}
	e.requireLedgeredRowsHeld(t, rep)
	got := e.stored(t, "1LID7")
	if got.Status != constants.StatusFlagged || got.StatusDesc != "API error 500: internal failure" {
		t.Fatalf("row = %s %q", got.Status, got.StatusDesc)
	}
	if n := e.count(t, repository.DefaultTables().ReferenceNumber); n != 0 {
		t.Fatalf("references = %d", n)
	}
	if _, err := os.Stat(filepath.Join(e.inbox, "1LID7.pdf")); err != nil {
		t.Fatal("document moved after a failed create")
	}
	if e.tms.autorates.Load() != 0 {
		t.Fatal("autorate called after a failed create")
	}
}

func TestDroppedDocuments(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID8", "1200 MAIN ST ATLANTA GA"))
	for _, name := range []string{"garbled.pdf", "broken.pdf"} {
		if err := os.WriteFile(filepath.Join(e.inbox, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	e.strategy.Extract = stubExtractor{fail: map[string]error{"broken.pdf": errors.New("unreadable text layer")}}

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Documents() != 3 || rep.Dropped() != 2 || rep.Submitted() != 1 {
		t.Fatalf("report = %s", rep.Summary())
	}
	// dropped documents never reach the store, so they are counted but not ledgered
	if fails := rep.Failures(); len(fails) != 0 {
		t.Fatalf("failures = %+v", fails)
	}
	e.requireLedgeredRowsHeld(t, rep)
}

func TestFieldErrorsLedgeredOnlyForNewRows(t *testing.T) {
	e := newEnv(t)
	rec := order("1LID9", "1200 MAIN ST ATLANTA GA")
	rec.Errors = []string{"CONBMA not found"}
	e.addDocument(t, rec)

	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	fails := rep.Failures()
	if len(fails) != 1 || fails[0].BOL != "1LID9" || fails[0].Messages[0] != "CONBMA not found" {
		t.Fatalf("failures = %+v", fails)
	}
	e.requireLedgeredRowsHeld(t, rep)
	if got := e.stored(t, "1LID9"); got.Status != constants.StatusFlagged || got.StatusDesc != "CONBMA not found" {
		t.Fatalf("row = %s %q", got.Status, got.StatusDesc)
	}

	e.addDocument(t, rec)
	rep, err = e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.AlreadyReconciled() != 1 || rep.Failed() != 0 {
		t.Fatalf("second run = %s failures=%v", rep.Summary(), rep.Failures())
	}
	if e.tms.creates.Load() != 0 {
		t.Fatal("flagged row submitted")
	}
}

func TestStageErrorAborts(t *testing.T) {
	e := newEnv(t)
	e.strategy.Paths.Inbox = filepath.Join(e.inbox, "missing")

	_, err := e.orch.Run(context.Background(), constants.Grain)
	var se *common.StageError
	if !errors.As(err, &se) || se.Stage != "scan" {
		t.Fatalf("want scan stage error, got %v", err)
	}
	if common.HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("status = %d", common.HTTPStatus(err))
	}
}

func TestCancelledRunReturnsPartialReport(t *testing.T) {
	e := newEnv(t)
	e.addDocument(t, order("1LID9", "1200 MAIN ST ATLANTA GA"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := e.orch.Run(ctx, constants.Grain)
	if !errors.Is(err, context.Canceled) || !rep.Cancelled() {
		t.Fatalf("rep cancelled=%v err=%v", rep.Cancelled(), err)
	}
	if e.tms.creates.Load() != 0 {
		t.Fatal("cancelled run submitted orders")
	}
}

func TestRunSelectionRejectsUnknownCategory(t *testing.T) {
	e := newEnv(t)
	_, err := e.orch.RunSelection(context.Background(), "grain,frozen")
	if !errors.Is(err, common.ErrInvalidInput) || !strings.Contains(err.Error(), "Invalid order_type: 'frozen'") {
		t.Fatalf("err = %v", err)
	}

	// resolute strategies are not registered in this environment
	if _, err := e.orch.RunSelection(context.Background(), "resolute_inbound"); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("unregistered strategy err = %v", err)
	}
}

func TestParallelSubmit(t *testing.T) {
	e := newEnv(t)
	e.orch.deps.Workers = 4
	for i := 10; i < 16; i++ {
		e.addDocument(t, order(fmt.Sprintf("1LID%d", i), "1200 MAIN ST ATLANTA GA"))
	}
	rep, err := e.orch.Run(context.Background(), constants.Grain)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Submitted() != 6 || rep.Failed() != 0 {
		t.Fatalf("report = %s", rep.Summary())
	}
	posted := rep.Posted()
	for i := 1; i < len(posted); i++ {
		if posted[i-1].BOL > posted[i].BOL {
			t.Fatalf("posted not sorted: %+v", posted)
		}
	}
}
