package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nugget/assistente/internal/temporal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each :memory: connection is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStoreWithDB(db)
	if err != nil {
		t.Fatalf("NewStoreWithDB: %v", err)
	}
	return s
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	if _, err := NewStore("postgres", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNewStore_PureDriverFile(t *testing.T) {
	s, err := NewStore(DriverPure, t.TempDir()+"/assistente.db")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	if err := s.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestTimeFormatSortsLexically(t *testing.T) {
	brt := time.FixedZone("UTC-03:00", -3*3600)
	a := formatTime(time.Date(2025, 12, 3, 22, 55, 0, 0, brt)) // 01:55Z next day
	b := formatTime(time.Date(2025, 12, 4, 0, 30, 0, 0, time.UTC))
	if !(b < a) {
		t.Errorf("expected %s < %s", b, a)
	}
	if got := parseTime(a); !got.Equal(time.Date(2025, 12, 3, 22, 55, 0, 0, brt)) {
		t.Errorf("round trip = %v", got)
	}
}

func TestReminders_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	due := time.Date(2025, 12, 3, 22, 55, 0, 0, time.UTC)

	r := &Reminder{UserID: "u1", Title: "Beber água", DueAt: due}
	if err := s.CreateReminder(ctx, r); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if r.ID == "" {
		t.Fatal("expected ID to be set")
	}
	if r.Recurrence.Type != RecurrenceOnce {
		t.Errorf("default recurrence = %q, want once", r.Recurrence.Type)
	}

	got, err := s.GetReminder(ctx, "u1", r.ID)
	if err != nil || got == nil {
		t.Fatalf("GetReminder: %v, %v", got, err)
	}
	if !got.DueAt.Equal(due) || got.Title != "Beber água" {
		t.Errorf("got %+v", got)
	}

	// Other users cannot see it.
	if other, _ := s.GetReminder(ctx, "u2", r.ID); other != nil {
		t.Error("reminder leaked across users")
	}

	got.Completed = true
	if err := s.UpdateReminder(ctx, got); err != nil {
		t.Fatalf("UpdateReminder: %v", err)
	}
	open, _ := s.ListReminders(ctx, "u1", false)
	if len(open) != 0 {
		t.Errorf("open reminders = %d, want 0", len(open))
	}
	all, _ := s.ListReminders(ctx, "u1", true)
	if len(all) != 1 {
		t.Errorf("all reminders = %d, want 1", len(all))
	}

	if err := s.DeleteReminder(ctx, "u1", r.ID); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	if err := s.DeleteReminder(ctx, "u1", r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestReminders_CustomRecurrenceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	maxCount := 3

	r := &Reminder{
		UserID: "u1",
		Title:  "Remédio",
		DueAt:  time.Now().Add(time.Hour),
		Recurrence: Recurrence{
			Type: RecurrenceCustom, Interval: 4, Unit: temporal.UnitHours, MaxCount: &maxCount,
		},
	}
	if err := s.CreateReminder(ctx, r); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	got, _ := s.GetReminder(ctx, "u1", r.ID)
	got.Title = "Tomar remédio"
	if err := s.UpdateReminder(ctx, got); err != nil {
		t.Fatalf("UpdateReminder: %v", err)
	}

	again, _ := s.GetReminder(ctx, "u1", r.ID)
	rec := again.Recurrence
	if rec.Type != RecurrenceCustom || rec.Interval != 4 || rec.Unit != temporal.UnitHours {
		t.Errorf("recurrence = %+v", rec)
	}
	if rec.MaxCount == nil || *rec.MaxCount != 3 {
		t.Errorf("max_count = %v, want 3", rec.MaxCount)
	}
}

func TestReminders_FindAndDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := time.Date(2025, 12, 3, 12, 0, 0, 0, time.UTC)

	for _, r := range []*Reminder{
		{UserID: "u1", Title: "Ligar para a Mãe", DueAt: ref.Add(-time.Minute)},
		{UserID: "u1", Title: "Pagar ÁGUA", DueAt: ref.Add(time.Hour)},
		{UserID: "u2", Title: "Ligar para o banco", DueAt: ref.Add(-2 * time.Minute)},
	} {
		if err := s.CreateReminder(ctx, r); err != nil {
			t.Fatalf("CreateReminder: %v", err)
		}
	}

	found, err := s.FindReminders(ctx, "u1", "água")
	if err != nil {
		t.Fatalf("FindReminders: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Pagar ÁGUA" {
		t.Errorf("found = %+v", found)
	}

	due, err := s.DueReminders(ctx, ref)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2", len(due))
	}
	if due[0].UserID != "u2" {
		t.Errorf("due not ordered by due_at: %+v", due)
	}
}

func TestTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := &Task{UserID: "u1", Title: "Organizar fotos", Priority: PriorityLow}
	urgent := &Task{UserID: "u1", Title: "Pagar IPTU", Priority: PriorityUrgent, Tags: []string{"casa"}}
	done := &Task{UserID: "u1", Title: "Pagar luz", Status: StatusDone}
	for _, tk := range []*Task{low, urgent, done} {
		if err := s.CreateTask(ctx, tk); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	open, err := s.ListTasks(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(open) != 2 || open[0].Title != "Pagar IPTU" {
		t.Fatalf("open tasks = %+v", open)
	}
	if len(open[0].Tags) != 1 || open[0].Tags[0] != "casa" {
		t.Errorf("tags = %v", open[0].Tags)
	}

	doneList, _ := s.ListTasks(ctx, "u1", StatusDone)
	if len(doneList) != 1 {
		t.Errorf("done tasks = %d, want 1", len(doneList))
	}

	matches, _ := s.FindTasks(ctx, "u1", "pagar")
	if len(matches) != 2 || matches[0].Title != "Pagar IPTU" {
		t.Errorf("open match should come first: %+v", matches)
	}

	low.Status = StatusInProgress
	if err := s.UpdateTask(ctx, low); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, _ := s.GetTask(ctx, "u1", low.ID)
	if got.Status != StatusInProgress {
		t.Errorf("status = %q", got.Status)
	}
}

func TestCollectionsAndItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &Collection{UserID: "u1", Name: "Gastos", Icon: "💰"}
	if err := s.CreateCollection(ctx, c); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	got, err := s.GetCollectionByName(ctx, "u1", "  gastos ")
	if err != nil || got == nil || got.ID != c.ID {
		t.Fatalf("GetCollectionByName = %+v, %v", got, err)
	}
	if none, _ := s.GetCollectionByName(ctx, "u2", "Gastos"); none != nil {
		t.Error("collection leaked across users")
	}

	items := []*Item{
		{CollectionID: c.ID, Content: "Mercado", Metadata: map[string]any{"amount": 50.0, "category": "comida"}},
		{CollectionID: c.ID, Content: "Uber", Metadata: map[string]any{"amount": 30.0, "category": "transporte"}},
		{CollectionID: c.ID, Content: "Padaria"},
	}
	for _, it := range items {
		if err := s.AddItem(ctx, it); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}

	all, err := s.ListItems(ctx, c.ID, ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 3 || all[0].Content != "Mercado" {
		t.Errorf("items = %+v", all)
	}

	food, _ := s.ListItems(ctx, c.ID, ItemFilter{Key: "category", Value: "COMIDA"})
	if len(food) != 1 || food[0].Content != "Mercado" {
		t.Errorf("filtered = %+v", food)
	}

	future := time.Now().Add(time.Hour)
	none, _ := s.ListItems(ctx, c.ID, ItemFilter{Since: &future})
	if len(none) != 0 {
		t.Errorf("since future = %d items, want 0", len(none))
	}

	found, _ := s.FindItems(ctx, c.ID, "ub")
	if len(found) != 1 || found[0].Content != "Uber" {
		t.Errorf("FindItems = %+v", found)
	}

	n, err := s.DeleteCollection(ctx, "u1", c.ID)
	if err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted items = %d, want 3", n)
	}
	if left, _ := s.ListItems(ctx, c.ID, ItemFilter{}); len(left) != 0 {
		t.Errorf("items left = %d", len(left))
	}
}

func TestSearchMemories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mems := []*Memory{
		{UserID: "u1", Content: "Aniversário da Ana é 12/05", Embedding: []float32{1, 0, 0}},
		{UserID: "u1", Content: "Gosta de café sem açúcar", Embedding: []float32{0, 1, 0}},
		{UserID: "u1", Content: "Ana mora em Recife", Embedding: []float32{0.8, 0.6, 0}},
		{UserID: "u2", Content: "Outro usuário", Embedding: []float32{1, 0, 0}},
	}
	for _, m := range mems {
		if err := s.SaveMemory(ctx, m); err != nil {
			t.Fatalf("SaveMemory: %v", err)
		}
	}

	hits, err := s.SearchMemories(ctx, "u1", []float32{1, 0, 0}, 0.5, 5)
	if err != nil {
		t.Fatalf("SearchMemories: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Content != "Aniversário da Ana é 12/05" {
		t.Errorf("best hit = %q", hits[0].Content)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Error("hits not ordered by similarity")
	}

	limited, _ := s.SearchMemories(ctx, "u1", []float32{1, 0, 0}, 0.5, 1)
	if len(limited) != 1 {
		t.Errorf("limited hits = %d, want 1", len(limited))
	}

	if n, _ := s.CountMemories(ctx, "u1"); n != 3 {
		t.Errorf("CountMemories = %d, want 3", n)
	}
}

func TestRules_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.UpsertRule(ctx, &Rule{UserID: "u1", Key: "tom", Content: "Respostas curtas"})
	if err != nil || !created {
		t.Fatalf("first upsert created=%v err=%v", created, err)
	}
	created, err = s.UpsertRule(ctx, &Rule{UserID: "u1", Key: "tom", Content: "Respostas detalhadas"})
	if err != nil || created {
		t.Fatalf("second upsert created=%v err=%v", created, err)
	}

	rules, _ := s.ListRules(ctx, "u1")
	if len(rules) != 1 || rules[0].Content != "Respostas detalhadas" {
		t.Errorf("rules = %+v", rules)
	}

	if err := s.DeleteRule(ctx, "u1", "tom"); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := s.DeleteRule(ctx, "u1", "tom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestTurnsAndSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)

	for i, content := range []string{"um", "dois", "três", "quatro"} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turn := &Turn{UserID: "u1", Role: role, Content: content, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	recent, err := s.RecentTurns(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(recent) != 3 || recent[0].Content != "dois" || recent[2].Content != "quatro" {
		t.Errorf("recent = %v", recent)
	}

	st, err := s.GetSettings(ctx, "u1")
	if err != nil || st.PreferredName != "" {
		t.Fatalf("empty settings = %+v, %v", st, err)
	}
	if err := s.SaveSettings(ctx, &Settings{UserID: "u1", PreferredName: "Lu"}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	st, _ = s.GetSettings(ctx, "u1")
	if st.PreferredName != "Lu" {
		t.Errorf("preferred name = %q", st.PreferredName)
	}
}
