package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/rarity/internal/db"
	"github.com/kailas-cloud/rarity/internal/domain/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

// --- hash.go tests ---

func TestHSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "rarity:content:1" && len(cmd) == 4
		})).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "rarity:content:1", map[string]string{"scope": "city"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.HSet(context.Background(), "k", map[string]string{"f": "v"})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "k")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Del(context.Background(), "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := NewStoreForTest(c)
	data, err := s.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_NetworkError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "mykey")
	if errors.Is(err, db.ErrKeyNotFound) {
		t.Error("should not be ErrKeyNotFound for network errors")
	}
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestSetWithTTL(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want string
	}{
		{"whole seconds", time.Minute, "60"},
		{"rounded up", 1500 * time.Millisecond, "2"},
		{"minimum one second", 0, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.Match("SET", "mykey", "myvalue", "EX", tt.want)).
				Return(mock.Result(mock.RedisString("OK")))

			s := NewStoreForTest(c)
			if err := s.SetWithTTL(context.Background(), "mykey", []byte("myvalue"), tt.ttl); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			joined := strings.Join(cmd, " ")
			return cmd[0] == "FT.CREATE" &&
				strings.Contains(joined, "ON HASH PREFIX 1 p:") &&
				strings.Contains(joined, "scope TAG") &&
				strings.Contains(joined, "created_at NUMERIC") &&
				strings.Contains(joined, "vector VECTOR HNSW 10 TYPE FLOAT32 DIM 4 DISTANCE_METRIC COSINE M 16 EF_CONSTRUCTION 200")
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	idx := db.NewIndex("idx").Prefix("p:").Tag("scope").Numeric("created_at").
		VectorHNSW("vector", 4, db.DistanceCosine, 16, 200).MustBuild()
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	err := s.CreateIndex(context.Background(), idx)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "test:idx",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	if err := s.CreateIndex(context.Background(), idx); !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name  string
		reply rueidis.RedisMessage
		want  bool
	}{
		{"exists", mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("test:idx")), true},
		{"redis unknown", mock.RedisError("Unknown Index name"), false},
		{"valkey not found", mock.RedisError("Index with name 'test:idx' not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.Match("FT.INFO", "test:idx")).
				Return(mock.Result(tt.reply))

			s := NewStoreForTest(c)
			exists, err := s.IndexExists(context.Background(), "test:idx")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exists != tt.want {
				t.Errorf("exists = %v, want %v", exists, tt.want)
			}
		})
	}
}

func TestBuildCreateArgs_Validation(t *testing.T) {
	_, err := buildCreateArgs(&db.IndexDefinition{Name: "", Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}}})
	if err == nil {
		t.Error("expected error for empty name")
	}

	_, err = buildCreateArgs(&db.IndexDefinition{Name: "test"})
	if err == nil {
		t.Error("expected error for empty fields")
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	if _, err := buildFieldArgs(&db.IndexField{Name: "", Type: db.IndexFieldTag}); err == nil {
		t.Error("expected error for empty field name")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldType(99)}); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldVector}); err == nil {
		t.Error("expected error for zero vector dim")
	}
}

// --- search.go tests ---

func TestSearchRange_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" &&
				cmd[2] == "(@negation:{false}) @vector:[VECTOR_RANGE $RADIUS $BLOB]=>{$YIELD_DISTANCE_AS: __vector_score}" &&
				cmd[3] == "RETURN" && cmd[4] == "2" && cmd[5] == "__vector_score" && cmd[6] == "id" &&
				cmd[7] == "SORTBY" && cmd[8] == "__vector_score" && cmd[9] == "ASC" &&
				cmd[10] == "LIMIT" && cmd[11] == "0" && cmd[12] == "5" &&
				cmd[13] == "PARAMS" && cmd[14] == "4" && cmd[15] == "RADIUS" && cmd[16] == "0.2"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(250), // total in range, beyond the page
			mock.RedisString("rarity:content:a"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"), // distance 0.1 is similarity 0.9
				mock.RedisString("id"),
				mock.RedisString("a"),
			),
			mock.RedisString("rarity:content:b"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("1.4"), // opposite direction clamps to 0
			),
		)))

	neg, _ := filter.NewMatch("negation", "false")
	expr, _ := filter.NewExpression([]filter.Condition{neg}, nil, nil)

	s := NewStoreForTest(c)
	result, err := s.SearchRange(context.Background(), &db.RangeQuery{
		IndexName:    "idx",
		Filters:      expr,
		Vector:       []float32{0.1, 0.2},
		Radius:       0.2,
		Limit:        5,
		ReturnFields: []string{"id"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 250 || len(result.Entries) != 2 {
		t.Fatalf("expected total=250 with 2 entries, got total=%d entries=%d", result.Total, len(result.Entries))
	}
	first := result.Entries[0]
	if first.Key != "rarity:content:a" || first.Fields["id"] != "a" {
		t.Errorf("unexpected entry %+v", first)
	}
	if first.Score < 0.89 || first.Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", first.Score)
	}
	if _, ok := first.Fields["__vector_score"]; ok {
		t.Error("score field should be stripped")
	}
	if result.Entries[1].Score != 0 {
		t.Errorf("expected clamped score 0, got %f", result.Entries[1].Score)
	}
}

func TestSearchRange_CountOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" &&
				cmd[2] == "@emb:[VECTOR_RANGE $RADIUS $BLOB]=>{$YIELD_DISTANCE_AS: __vector_score}" &&
				cmd[3] == "LIMIT" && cmd[4] == "0" && cmd[5] == "0"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(1200))))

	s := NewStoreForTest(c)
	result, err := s.SearchRange(context.Background(), &db.RangeQuery{
		IndexName:   "idx",
		VectorField: "emb",
		Vector:      []float32{0.1},
		Radius:      0.15,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1200 || len(result.Entries) != 0 {
		t.Errorf("expected total=1200 and no entries, got %+v", result)
	}
}

func TestSearchRange_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.SearchRange(context.Background(), &db.RangeQuery{
		IndexName: "idx",
		Vector:    []float32{0.1},
		Radius:    0.2,
		Limit:     10,
	})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

func TestSearchRange_ServerRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisError("Invalid filter format")))

	s := NewStoreForTest(c)
	_, err := s.SearchRange(context.Background(), &db.RangeQuery{
		IndexName: "idx",
		Vector:    []float32{0.1},
		Radius:    0.2,
	})
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
	if !errors.Is(err, db.ErrQueryRejected) {
		t.Errorf("expected ErrQueryRejected, got %v", err)
	}
}

func TestSearchRange_TransportErrorNotRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.SearchRange(context.Background(), &db.RangeQuery{
		IndexName: "idx",
		Vector:    []float32{0.1},
		Radius:    0.2,
	})
	if errors.Is(err, db.ErrQueryRejected) {
		t.Errorf("transport failure marked as rejected: %v", err)
	}
}

func TestSearchRange_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	if _, err := s.SearchRange(ctx, &db.RangeQuery{Vector: []float32{0.1}, Radius: 0.2}); err == nil {
		t.Error("expected error for empty index name")
	}
	if _, err := s.SearchRange(ctx, &db.RangeQuery{IndexName: "idx", Radius: 0.2}); err == nil {
		t.Error("expected error for empty vector")
	}
	if _, err := s.SearchRange(ctx, &db.RangeQuery{IndexName: "idx", Vector: []float32{0.1}}); err == nil {
		t.Error("expected error for zero radius")
	}
	if _, err := s.SearchRange(ctx, &db.RangeQuery{IndexName: "idx", Vector: []float32{0.1}, Radius: 0.2, Limit: -1}); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestSearchCount_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "idx", "@state:{texas}", "LIMIT", "0", "0", "DIALECT", "2")).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(42))))

	cond, _ := filter.NewMatch("state", "texas")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	s := NewStoreForTest(c)
	count, err := s.SearchCount(context.Background(), &db.CountQuery{IndexName: "idx", Filters: expr})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Errorf("expected 42, got %d", count)
	}
}

func TestSearchCount_MatchAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "idx", "*", "LIMIT", "0", "0", "DIALECT", "2")).
		Return(mock.Result(mock.RedisArray()))

	s := NewStoreForTest(c)
	count, err := s.SearchCount(context.Background(), &db.CountQuery{IndexName: "idx"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

// --- filter building tests ---

func TestBuildFilter(t *testing.T) {
	city, _ := filter.NewMatch("scope", "city")
	state, _ := filter.NewMatch("scope", "state")
	tx, _ := filter.NewMatch("state", "new mexico")
	draft, _ := filter.NewMatch("status", "draft")
	since, _ := filter.NewRange("created_at", filter.AtLeast(1767225600))

	tests := []struct {
		name                  string
		must, should, mustNot []filter.Condition
		want                  string
	}{
		{"empty", nil, nil, nil, ""},
		{"must tag with space", []filter.Condition{tx}, nil, nil, `@state:{new\ mexico}`},
		{"must numeric", []filter.Condition{since}, nil, nil, `@created_at:[1767225600 +inf]`},
		{"should", nil, []filter.Condition{city, state}, nil, `(@scope:{city} | @scope:{state})`},
		{"must not", nil, nil, []filter.Condition{draft}, `-@status:{draft}`},
		{"combined", []filter.Condition{tx}, []filter.Condition{city, state}, []filter.Condition{draft},
			`@state:{new\ mexico} (@scope:{city} | @scope:{state}) -@status:{draft}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := filter.NewExpression(tt.must, tt.should, tt.mustNot)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := buildFilter(expr); got != tt.want {
				t.Errorf("buildFilter = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildNumericFilter_Exclusive(t *testing.T) {
	gt, lt := 5.0, 100.0
	rng, _ := filter.NewRangeFilter(&gt, nil, &lt, nil)
	if got := buildNumericFilter("price", rng); got != `@price:[(5 (100]` {
		t.Errorf("unexpected filter: %q", got)
	}
}

func TestVectorToBytes(t *testing.T) {
	if b := vectorToBytes([]float32{1.0, 2.0}); len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

// --- helpers ---

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
