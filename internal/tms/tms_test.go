package tms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/ledger"
	"github.com/joseph-ayodele/order-intake/internal/repository"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeTMS struct {
	createStatus   int
	createBody     string
	autorateStatus int
	creates        atomic.Int32
	autorates      atomic.Int32
	lastCreate     OrderPayload
}

func (f *fakeTMS) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/create", func(w http.ResponseWriter, r *http.Request) {
		f.creates.Add(1)
		if r.Method != http.MethodPut {
			t.Errorf("create method = %s", r.Method)
		}
		if r.Header.Get(CompanyHeader) != "TMS" {
			t.Errorf("missing company header")
		}
		if u, p, ok := r.BasicAuth(); !ok || u != "api" || p != "secret" {
			t.Errorf("basic auth = %q %q %v", u, p, ok)
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastCreate)
		w.WriteHeader(f.createStatus)
		_, _ = io.WriteString(w, f.createBody)
	})
	mux.HandleFunc("/orders/autorate/", func(w http.ResponseWriter, r *http.Request) {
		f.autorates.Add(1)
		if f.autorateStatus != http.StatusOK {
			w.WriteHeader(f.autorateStatus)
			_, _ = io.WriteString(w, "rating engine down")
			return
		}
		_, _ = io.WriteString(w, `{"id":"`+strings.TrimPrefix(r.URL.Path, "/orders/autorate/")+`","total_charge":1234.50}`)
	})
	return mux
}

const createdBody = `{"id":"0042","blnum":"1LID9","consignee_refno":"PO-9","customer_id":"GRAMIA","shipper_stop_id":"S1","consignee_stop_id":"S2"}`

func newFake(t *testing.T) (*fakeTMS, *Client) {
	t.Helper()
	f := &fakeTMS{createStatus: http.StatusOK, createBody: createdBody, autorateStatus: http.StatusOK}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", Username: "api", Password: "secret", CompanyID: "TMS"}, srv.Client(), quiet())
	return f, c
}

func testPayload(bol string) *OrderPayload {
	stop := func(role string) StopPayload {
		return StopPayload{
			Type: "stop", Name: "stops", CompanyID: "TMS", LocationID: "KENMIA", StopType: role,
			SchedArriveEarly: "20240601000100-0600", SchedArriveLate: "20240601235900-0600",
		}
	}
	return &OrderPayload{
		Type: "orders", CompanyID: "TMS", BLNum: bol, CustomerID: "GRAMIA",
		OrderedDate: "20240601000000-0600", OrderedMethod: "M",
		Stops: []StopPayload{stop("PU"), stop("SO")},
	}
}

func TestClientCreateAndAutorate(t *testing.T) {
	f, c := newFake(t)
	ctx := context.Background()

	got, err := c.CreateOrder(ctx, testPayload("1LID9"))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "0042" || got.ShipperStopID != "S1" || got.ConsigneeRefNo != "PO-9" {
		t.Fatalf("created = %+v", got)
	}
	if f.lastCreate.Stops[1].StopType != "SO" {
		t.Fatalf("payload not sent: %+v", f.lastCreate)
	}

	rate, err := c.Autorate(ctx, got.ID)
	if err != nil || !rate.HasCharge || rate.TotalCharge.String() != "1234.5" {
		t.Fatalf("rate = %+v, %v", rate, err)
	}
}

func TestClientCreateErrors(t *testing.T) {
	f, c := newFake(t)
	ctx := context.Background()

	f.createStatus, f.createBody = http.StatusInternalServerError, "boom"
	_, err := c.CreateOrder(ctx, testPayload("1LID9"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 500 || err.Error() != "API error 500: boom" {
		t.Fatalf("err = %v", err)
	}
	if createMessage(err) != "API error 500: boom" {
		t.Fatalf("message = %q", createMessage(err))
	}

	f.createStatus, f.createBody = http.StatusOK, "<html>"
	_, err = c.CreateOrder(ctx, testPayload("1LID9"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("want ErrDecode, got %v", err)
	}
	if got := createMessage(err); got != "Error decoding JSON response from API: <html>" {
		t.Fatalf("message = %q", got)
	}
}

func TestValidatePayload(t *testing.T) {
	if err := ValidatePayload(testPayload("1LID9")); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	p := testPayload("1LID9")
	p.Stops[0].SchedArriveEarly = "2024-06-01"
	if err := ValidatePayload(p); err == nil {
		t.Fatal("bad stamp accepted")
	}
	p = testPayload("1LID9")
	p.Stops = p.Stops[:1]
	if err := ValidatePayload(p); err == nil {
		t.Fatal("single stop accepted")
	}
	p = testPayload("1LID9")
	p.Stops[1].SchedArriveLate = ""
	if err := ValidatePayload(p); err != nil {
		t.Fatalf("drop-off without late window rejected: %v", err)
	}
}

type fakeArchiver struct{ moved []string }

func (a *fakeArchiver) Archive(_ context.Context, src string) (string, error) {
	a.moved = append(a.moved, src)
	return "/archive/" + src, nil
}

type harness struct {
	db       *repository.DB
	orders   repository.OrderRepository
	remote   repository.TMSRepository
	fake     *fakeTMS
	archiver *fakeArchiver
	ledger   *ledger.Ledger
	client   *Client
	flow     Workflow
	sub      *Submitter
	attached []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.OpenSQLite(context.Background(), ":memory:", true)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repository.Close(db, nil) })

	h := &harness{
		db:       db,
		orders:   repository.NewOrderRepository(db, repository.DefaultTables().Orders, quiet()),
		remote:   repository.NewTMSRepository(db, repository.DefaultTables(), "TMS", quiet()),
		archiver: &fakeArchiver{},
		ledger:   ledger.New(),
	}
	h.fake, h.client = newFake(t)
	h.flow = Workflow{
		InboxDir: "inbox",
		Build:    func(rec *entity.OrderRecord) (*OrderPayload, error) { return testPayload(rec.BOL), nil },
		Attach: func(_ context.Context, rec *entity.OrderRecord, _ *CreatedOrder, doc string) error {
			h.attached = append(h.attached, doc)
			return nil
		},
	}
	h.sub = h.submitter(h.orders, h.remote, quiet())
	return h
}

func (h *harness) submitter(orders repository.OrderRepository, remote repository.TMSRepository, logger *slog.Logger) *Submitter {
	return NewSubmitter(orders, remote, h.client, h.archiver, h.ledger, h.flow, logger)
}

// flakyRemote fails the failOn'th InsertReference call.
type flakyRemote struct {
	repository.TMSRepository
	failOn int
	calls  int
}

func (r *flakyRemote) InsertReference(ctx context.Context, ref repository.Reference) error {
	r.calls++
	if r.calls == r.failOn {
		return errors.New("reference table locked")
	}
	return r.TMSRepository.InsertReference(ctx, ref)
}

// stuckOrders fails MarkProcessed and passes everything else through.
type stuckOrders struct {
	repository.OrderRepository
}

func (stuckOrders) MarkProcessed(context.Context, string) error { return errors.New("disk full") }

func (h *harness) seed(t *testing.T, bol string) *entity.OrderRecord {
	t.Helper()
	ctx := context.Background()
	rec := &entity.OrderRecord{
		BOL: bol, CustomerID: "GRAMIA", OrderedDate: "06/01/2024", Category: constants.Grain,
		Pickup:     entity.Stop{Role: constants.Pickup, Address: "4815 55TH MUSCATINE IA 52761", Date: "06/01/2024"},
		Dropoff:    entity.Stop{Role: constants.Dropoff, Address: "445 HURRICANE TRAIL DACULA GA", Date: "06/02/2024"},
		OriginFile: bol + ".pdf",
	}
	if _, err := h.orders.Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Pickup.Location = &entity.LocationRef{Code: "KENMIA"}
	rec.Dropoff.Location = &entity.LocationRef{Code: "PUBDGA"}
	if err := h.orders.UpdateEnrichment(ctx, rec, constants.StatusDownloaded, "Processed - updated"); err != nil {
		t.Fatal(err)
	}
	pending, err := h.orders.ListPending(ctx, "GRAMIA")
	if err != nil || len(pending) == 0 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	return pending[len(pending)-1]
}

func (h *harness) referenceCount(t *testing.T) int {
	t.Helper()
	b := entsql.Dialect(h.db.Dialect())
	q, args := b.Select("COUNT(*)").From(b.Table(repository.DefaultTables().ReferenceNumber)).Query()
	rows := &entsql.Rows{}
	if err := h.db.Driver.Query(context.Background(), q, args, rows); err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var n int
	if !rows.Next() || rows.Scan(&n) != nil {
		t.Fatal("count references")
	}
	return n
}

func TestSubmitProcessesOrder(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID9")

	out := h.sub.Submit(context.Background(), row)
	if out.Kind != OutcomeCreated || out.OrderID != "0042" || out.Rate.String() != "1234.5" {
		t.Fatalf("outcome = %+v", out)
	}
	got, _ := h.orders.FindByBOL(context.Background(), "1LID9")
	if got.Status != constants.StatusProcessed || !got.IsProcessed {
		t.Fatalf("row = %s processed=%v", got.Status, got.IsProcessed)
	}
	if n := h.referenceCount(t); n != 2 {
		t.Fatalf("references = %d", n)
	}
	if len(h.archiver.moved) != 1 || h.archiver.moved[0] != "inbox/1LID9.pdf" {
		t.Fatalf("archived = %v", h.archiver.moved)
	}
	if len(h.attached) != 1 || h.attached[0] != "/archive/inbox/1LID9.pdf" {
		t.Fatalf("attached = %v", h.attached)
	}
	if h.ledger.Has("1LID9") {
		t.Fatalf("ledger = %v", h.ledger.Messages("1LID9"))
	}
}

func TestSubmitCreateFailureFlags(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID10")
	h.fake.createStatus, h.fake.createBody = http.StatusInternalServerError, "boom"

	out := h.sub.Submit(context.Background(), row)
	if out.Kind != OutcomeFailed {
		t.Fatalf("outcome = %+v", out)
	}
	got, _ := h.orders.FindByBOL(context.Background(), "1LID10")
	if got.Status != constants.StatusFlagged || got.StatusDesc != "API error 500: boom" {
		t.Fatalf("row = %s %q", got.Status, got.StatusDesc)
	}
	if h.referenceCount(t) != 0 || len(h.archiver.moved) != 0 || h.fake.autorates.Load() != 0 {
		t.Fatal("later steps ran after a failed create")
	}
	if msgs := h.ledger.Messages("1LID10"); len(msgs) != 1 || msgs[0] != "API error 500: boom" {
		t.Fatalf("ledger = %v", msgs)
	}
}

func TestSubmitSkipsOrderAlreadyInTMS(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID11")
	b := entsql.Dialect(h.db.Dialect())
	q, args := b.Insert(repository.DefaultTables().RemoteOrders).
		Columns("id", "blnum", "shipper_stop_id", "consignee_stop_id").
		Values("0007", "1LID11", "S1", "S2").
		Query()
	var res entsql.Result
	if err := h.db.Driver.Exec(context.Background(), q, args, &res); err != nil {
		t.Fatal(err)
	}

	out := h.sub.Submit(context.Background(), row)
	if out.Kind != OutcomeAlreadyExists || out.OrderID != "0007" {
		t.Fatalf("outcome = %+v", out)
	}
	if h.fake.creates.Load() != 0 {
		t.Fatal("create called for an existing order")
	}
	got, _ := h.orders.FindByBOL(context.Background(), "1LID11")
	if got.Status != constants.StatusDownloaded {
		t.Fatalf("status changed to %s", got.Status)
	}
}

func TestSubmitAutorateFailureHoldsAtCreated(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID12")
	h.fake.autorateStatus = http.StatusBadGateway

	out := h.sub.Submit(context.Background(), row)
	if out.Kind != OutcomeFailed || out.OrderID != "0042" {
		t.Fatalf("outcome = %+v", out)
	}
	want := "Autorate ERROR 1LID12,api error 502: rating engine down"
	got, _ := h.orders.FindByBOL(context.Background(), "1LID12")
	if got.Status != constants.StatusCreated || got.StatusDesc != want || got.IsProcessed {
		t.Fatalf("row = %s %q", got.Status, got.StatusDesc)
	}
	if h.referenceCount(t) != 2 || len(h.archiver.moved) != 1 {
		t.Fatal("references and archive should precede autorate")
	}
	if len(h.attached) != 0 {
		t.Fatal("attach ran for an unrated order")
	}
}

func TestSubmitSkipsLedgeredRow(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID13")
	h.ledger.Record("1LID13", ledger.Entry{Stage: "enrich", Message: "earlier failure"})

	if out := h.sub.Submit(context.Background(), row); out.Kind != OutcomeSkipped {
		t.Fatalf("outcome = %+v", out)
	}
	if h.fake.creates.Load() != 0 {
		t.Fatal("create called for a ledgered row")
	}
}

func TestSubmitReferenceFailureStopsRemainingSteps(t *testing.T) {
	for _, failOn := range []int{1, 2} {
		h := newHarness(t)
		bol := "1LID2" + string(rune('0'+failOn))
		row := h.seed(t, bol)
		remote := &flakyRemote{TMSRepository: h.remote, failOn: failOn}

		out := h.submitter(h.orders, remote, quiet()).Submit(context.Background(), row)
		if out.Kind != OutcomeFailed || out.OrderID != "0042" {
			t.Fatalf("failOn=%d outcome = %+v", failOn, out)
		}
		if remote.calls != failOn || h.referenceCount(t) != failOn-1 {
			t.Fatalf("failOn=%d calls=%d references=%d", failOn, remote.calls, h.referenceCount(t))
		}
		got, _ := h.orders.FindByBOL(context.Background(), bol)
		if got.Status != constants.StatusFlagged || got.StatusDesc != "Unexpected error: reference table locked" {
			t.Fatalf("failOn=%d row = %s %q", failOn, got.Status, got.StatusDesc)
		}
		msgs := h.ledger.Messages(bol)
		if len(msgs) != 1 || msgs[0] != "Error inserting reference number into database: reference table locked" {
			t.Fatalf("failOn=%d ledger = %v", failOn, msgs)
		}
		if len(h.archiver.moved) != 0 || h.fake.autorates.Load() != 0 || len(h.attached) != 0 {
			t.Fatalf("failOn=%d later steps ran after a reference failure", failOn)
		}
	}
}

func TestSubmitMarkProcessedFailureKeepsRemoteResult(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID30")

	out := h.submitter(stuckOrders{h.orders}, h.remote, quiet()).Submit(context.Background(), row)
	if out.Kind != OutcomeFailed || out.OrderID != "0042" {
		t.Fatalf("outcome = %+v", out)
	}
	want := "Error updating order status in database: disk full"
	if msgs := h.ledger.Messages("1LID30"); len(msgs) != 1 || msgs[0] != want {
		t.Fatalf("ledger = %v", msgs)
	}
	got, _ := h.orders.FindByBOL(context.Background(), "1LID30")
	if got.Status != constants.StatusAutorated || got.IsProcessed || got.StatusDesc != want {
		t.Fatalf("row = %s processed=%v %q", got.Status, got.IsProcessed, got.StatusDesc)
	}
	if h.fake.creates.Load() != 1 || h.fake.autorates.Load() != 1 || h.referenceCount(t) != 2 {
		t.Fatal("remote side should keep the created and rated order")
	}
	if len(h.attached) != 0 {
		t.Fatal("attach ran for an order not marked processed")
	}
}

func TestSubmitLogsRunID(t *testing.T) {
	h := newHarness(t)
	row := h.seed(t, "1LID31")
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := common.WithRunID(context.Background(), "run-7")
	if out := h.submitter(h.orders, h.remote, logger).Submit(ctx, row); out.Kind != OutcomeCreated {
		t.Fatalf("outcome = %+v", out)
	}
	if !strings.Contains(buf.String(), `"run_id":"run-7"`) {
		t.Fatalf("log lines missing run id: %s", buf.String())
	}
}
