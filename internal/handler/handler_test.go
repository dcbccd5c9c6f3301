package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/Sheiden1/hackathon/internal/blob"
	"github.com/Sheiden1/hackathon/internal/grading"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/metrics"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/session"
	"github.com/Sheiden1/hackathon/internal/store"
	"github.com/Sheiden1/hackathon/internal/submission"
)

type fakeGenerator struct {
	calls int
}

func (f *fakeGenerator) GenerateQuestions(_ context.Context, subjectID, _ string, count int) ([]model.GeneratedQuestion, error) {
	f.calls++
	out := make([]model.GeneratedQuestion, count)
	for i := range out {
		out[i] = model.GeneratedQuestion{
			ID:         "gen",
			Available:  true,
			SubjectID:  subjectID,
			Difficulty: model.DifficultyEasy,
			Question: model.GeneratedBody{
				Statement: "Quanto é 2+2?",
				Alternatives: []model.Alternative{
					{Letter: "A", Text: "3"},
					{Letter: "B", Text: "4"},
					{Letter: "C", Text: "5"},
					{Letter: "D", Text: "22"},
				},
				CorrectAnswer: "B",
			},
		}
	}
	return out, nil
}

type testEnv struct {
	t       *testing.T
	store   *store.Store
	gen     *fakeGenerator
	blobDir string
	h       *Handler
	router  chi.Router
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	env := &testEnv{t: t, store: s, gen: &fakeGenerator{}, blobDir: t.TempDir()}
	h := New(s, env.gen, blob.NewLocal(env.blobDir), metrics.New(), cfg)
	r := chi.NewRouter()
	h.Routes(r)
	env.h = h
	env.router = r
	return env
}

func (e *testEnv) user(username string, role model.UserRole) (id, token string) {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	if err != nil {
		e.t.Fatalf("hash: %v", err)
	}
	id, err = e.store.CreateUser(context.Background(), model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		e.t.Fatalf("CreateUser: %v", err)
	}
	rec := e.do(http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": "secret123"})
	if rec.Code != http.StatusOK {
		e.t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body)
	}
	var resp loginResponse
	decode(e.t, rec, &resp)
	return id, resp.Token
}

func (e *testEnv) subject(name string) string {
	e.t.Helper()
	id, err := e.store.CreateSubject(context.Background(), model.Subject{Name: name})
	if err != nil {
		e.t.Fatalf("CreateSubject: %v", err)
	}
	return id
}

func (e *testEnv) question(subjectID, text, correct string) string {
	e.t.Helper()
	id, err := e.store.InsertQuestion(context.Background(), model.StoredQuestion{
		SubjectID:     subjectID,
		QuestionText:  text,
		OptionA:       "a",
		OptionB:       "b",
		OptionC:       "c",
		OptionD:       "d",
		CorrectAnswer: correct,
		Difficulty:    model.DifficultyMedium,
	})
	if err != nil {
		e.t.Fatalf("InsertQuestion: %v", err)
	}
	return id
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(path, token, filename string, content []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		e.t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body)
	}
}

func (e *testEnv) startPlay(token string, body map[string]any) playView {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/play", token, body)
	expectStatus(e.t, rec, http.StatusCreated)
	var v playView
	decode(e.t, rec, &v)
	return v
}

// playThrough answers every question in order and returns the final result.
func (e *testEnv) playThrough(token, playID string, choices []int) resultView {
	e.t.Helper()
	for i, c := range choices {
		rec := e.do(http.MethodPost, "/play/"+playID+"/answer", token, map[string]int{"choice": c})
		expectStatus(e.t, rec, http.StatusOK)
		rec = e.do(http.MethodPost, "/play/"+playID+"/advance", token, nil)
		expectStatus(e.t, rec, http.StatusOK)
		var adv advanceResponse
		decode(e.t, rec, &adv)
		if last := i == len(choices)-1; adv.Finished != last {
			e.t.Fatalf("after answer %d finished = %v, want %v", i, adv.Finished, last)
		}
		if adv.Finished {
			return *adv.Result
		}
	}
	e.t.Fatalf("play %s never finished", playID)
	return resultView{}
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, token := env.user("ana", model.UserRoleStudent)

	rec := env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "ana", "password": "wrong"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(http.MethodGet, "/auth/me", token, nil)
	expectStatus(t, rec, http.StatusOK)
	var me model.User
	decode(t, rec, &me)
	if me.Username != "ana" || me.Role != model.UserRoleStudent {
		t.Errorf("me = %+v", me)
	}

	expectStatus(t, env.do(http.MethodGet, "/auth/me", "", nil), http.StatusUnauthorized)
	expectStatus(t, env.do(http.MethodPost, "/auth/logout", token, nil), http.StatusNoContent)
	expectStatus(t, env.do(http.MethodGet, "/auth/me", token, nil), http.StatusUnauthorized)
}

func TestAssignedPlayRecordedAndGraded(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, teacher := env.user("prof", model.UserRoleTeacher)
	studentID, student := env.user("ana", model.UserRoleStudent)

	subj := env.subject("Matemática")
	qids := []string{
		env.question(subj, "q1", "B"),
		env.question(subj, "q2", "A"),
		env.question(subj, "q3", "C"),
	}
	rec := env.do(http.MethodPost, "/activities", teacher, map[string]any{
		"title":        "Lista 1",
		"subject_id":   subj,
		"question_ids": qids,
	})
	expectStatus(t, rec, http.StatusCreated)
	var act model.Activity
	decode(t, rec, &act)

	v := env.startPlay(student, map[string]any{"activity_id": act.ID})
	if v.Total != 3 || v.Kind != playAssigned || v.Answer != nil {
		t.Fatalf("start view = %+v", v)
	}
	if v.Question.Prompt != "q1" || v.Question.SubjectLabel != "Matemática" {
		t.Errorf("first question = %+v", v.Question)
	}

	res := env.playThrough(student, v.ID, []int{1, 1, 2})
	if res.CorrectCount != 2 || res.Total != 3 || res.Score != 67 {
		t.Errorf("result = %+v, want 2/3 at 67", res)
	}
	if !res.Recorded || res.SubmissionID == "" {
		t.Fatalf("result not recorded: %+v", res)
	}
	if !strings.Contains(res.Message, "2 of 3") {
		t.Errorf("message = %q", res.Message)
	}

	// The play is gone once recorded.
	expectStatus(t, env.do(http.MethodGet, "/play/"+v.ID, student, nil), http.StatusNotFound)

	answers, err := env.store.ListStudentAnswers(context.Background(), res.SubmissionID)
	if err != nil {
		t.Fatalf("ListStudentAnswers: %v", err)
	}
	wantLetters := []string{"B", "B", "C"}
	if len(answers) != len(wantLetters) {
		t.Fatalf("answers = %d, want %d", len(answers), len(wantLetters))
	}
	for i, a := range answers {
		if a.SelectedAnswer != wantLetters[i] {
			t.Errorf("answer %d = %s, want %s", i, a.SelectedAnswer, wantLetters[i])
		}
	}

	rec = env.do(http.MethodGet, "/grading/pending", teacher, nil)
	expectStatus(t, rec, http.StatusOK)
	var pending []pendingView
	decode(t, rec, &pending)
	if len(pending) != 1 || pending[0].ID != res.SubmissionID || pending[0].StudentName != "ana" || pending[0].StudentID != studentID {
		t.Fatalf("pending = %+v", pending)
	}

	grades := []struct {
		score    float64
		feedback string
	}{
		{85, "Bom trabalho"},
		{60, "Revisar"},
	}
	for _, g := range grades {
		rec = env.do(http.MethodPost, "/grading/"+res.SubmissionID, teacher, map[string]any{"score": g.score, "feedback": g.feedback})
		expectStatus(t, rec, http.StatusOK)
		sub, err := env.store.GetSubmission(context.Background(), res.SubmissionID)
		if err != nil || sub == nil {
			t.Fatalf("GetSubmission: %v, %v", sub, err)
		}
		if sub.Status != model.StatusGraded || sub.Score == nil || *sub.Score != g.score || sub.Feedback == nil || *sub.Feedback != g.feedback {
			t.Errorf("after grading %v: %+v", g, sub)
		}
	}

	rec = env.do(http.MethodGet, "/grading/pending", teacher, nil)
	decode(t, rec, &pending)
	if len(pending) != 0 {
		t.Errorf("pending after grading = %d, want 0", len(pending))
	}
}

func TestCustomPlayIsDiscarded(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, student := env.user("ana", model.UserRoleStudent)
	subj := env.subject("História")
	env.question(subj, "q1", "A")
	env.question(subj, "q2", "A")
	env.question(subj, "q3", "A")

	v := env.startPlay(student, map[string]any{"subject_id": subj, "limit": 2})
	if v.Total != 2 || v.Kind != playCustom {
		t.Fatalf("start view = %+v", v)
	}
	res := env.playThrough(student, v.ID, []int{0, 3})
	if res.Recorded || res.SubmissionID != "" || res.Score != 50 {
		t.Errorf("result = %+v, want discarded at 50", res)
	}
	subs, err := env.store.ListSubmissions(context.Background())
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("submissions = %d, want 0", len(subs))
	}
}

func TestGeneratedCustomPlay(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, student := env.user("ana", model.UserRoleStudent)
	subj := env.subject("Matemática")

	v := env.startPlay(student, map[string]any{"subject_id": subj, "generate": true, "count": 3})
	if v.Total != 3 {
		t.Fatalf("total = %d, want 3", v.Total)
	}
	res := env.playThrough(student, v.ID, []int{1, 1, 0})
	if res.Recorded || res.CorrectCount != 2 {
		t.Errorf("result = %+v", res)
	}
	n, err := env.store.QuestionCount(context.Background())
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if n != 0 {
		t.Errorf("question bank = %d, want 0 for an ephemeral play", n)
	}
}

func TestAnswerRules(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, student := env.user("ana", model.UserRoleStudent)
	subj := env.subject("Geografia")
	env.question(subj, "q1", "C")
	env.question(subj, "q2", "C")

	v := env.startPlay(student, map[string]any{"subject_id": subj})
	base := "/play/" + v.ID

	rec := env.do(http.MethodPost, base+"/advance", student, nil)
	expectStatus(t, rec, http.StatusConflict)

	expectStatus(t, env.do(http.MethodPost, base+"/answer", student, map[string]int{"choice": 4}), http.StatusBadRequest)
	expectStatus(t, env.do(http.MethodPost, base+"/answer", student, map[string]any{}), http.StatusBadRequest)

	rec = env.do(http.MethodPost, base+"/answer", student, map[string]int{"choice": 2})
	expectStatus(t, rec, http.StatusOK)
	var first answerResponse
	decode(t, rec, &first)
	if !first.Applied || !first.Correct || first.CorrectLetter != "C" {
		t.Errorf("first answer = %+v", first)
	}

	rec = env.do(http.MethodPost, base+"/answer", student, map[string]int{"choice": 0})
	expectStatus(t, rec, http.StatusOK)
	var second answerResponse
	decode(t, rec, &second)
	if second.Applied || second.ChosenIndex != 2 || !second.Correct {
		t.Errorf("second answer should be ignored, got %+v", second)
	}

	rec = env.do(http.MethodGet, base, student, nil)
	var state playView
	decode(t, rec, &state)
	if state.CorrectCount != 1 || state.Answer == nil || state.Progress != 0.5 {
		t.Errorf("state = %+v", state)
	}
}

func TestPlayBelongsToOwner(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, ana := env.user("ana", model.UserRoleStudent)
	_, bia := env.user("bia", model.UserRoleStudent)
	subj := env.subject("Física")
	env.question(subj, "q1", "A")

	v := env.startPlay(ana, map[string]any{"subject_id": subj})
	expectStatus(t, env.do(http.MethodGet, "/play/"+v.ID, bia, nil), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodDelete, "/play/"+v.ID, bia, nil), http.StatusNotFound)
	expectStatus(t, env.do(http.MethodDelete, "/play/"+v.ID, ana, nil), http.StatusNoContent)
	expectStatus(t, env.do(http.MethodGet, "/play/"+v.ID, ana, nil), http.StatusNotFound)
}

func TestStartPlayErrors(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, student := env.user("ana", model.UserRoleStudent)
	empty := env.subject("Vazia")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"empty subject", map[string]any{"subject_id": empty}, http.StatusBadRequest},
		{"unknown subject", map[string]any{"subject_id": "nope"}, http.StatusNotFound},
		{"unknown activity", map[string]any{"activity_id": "nope"}, http.StatusNotFound},
		{"unknown field", map[string]any{"subject": empty}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/play", student, tt.body)
			expectStatus(t, rec, tt.want)
			var resp errorResponse
			decode(t, rec, &resp)
			if resp.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestTeacherRoutesForbidStudents(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, student := env.user("ana", model.UserRoleStudent)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/grading/pending"},
		{http.MethodPost, "/grading/x"},
		{http.MethodPost, "/generate"},
		{http.MethodPost, "/activities"},
		{http.MethodGet, "/questions"},
		{http.MethodGet, "/admin/users"},
	}
	for _, tt := range tests {
		rec := env.do(tt.method, tt.path, student, map[string]any{})
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s = %d, want 403", tt.method, tt.path, rec.Code)
		}
	}

	_, teacher := env.user("prof", model.UserRoleTeacher)
	subj := env.subject("Artes")
	env.question(subj, "q1", "C")
	rec := env.do(http.MethodGet, "/questions?subject="+subj, teacher, nil)
	expectStatus(t, rec, http.StatusOK)
	var rows []model.StoredQuestion
	decode(t, rec, &rows)
	if len(rows) != 1 || rows[0].CorrectAnswer != "C" {
		t.Errorf("teacher question list = %+v", rows)
	}
}

func TestGradeValidationAndScale(t *testing.T) {
	env := newTestEnv(t, Config{GradeScale: grading.Scale10})
	_, teacher := env.user("prof", model.UserRoleTeacher)
	studentID, _ := env.user("ana", model.UserRoleStudent)
	subj := env.subject("Química")
	qid := env.question(subj, "q1", "A")
	actID, err := env.store.CreateActivity(context.Background(), model.Activity{Title: "T", SubjectID: subj}, []string{qid})
	if err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	sub := &model.Submission{ActivityID: actID, StudentID: studentID, SubmittedAt: time.Now(), Status: model.StatusPending}
	if err := env.store.CreateSubmission(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{"blank feedback", "/grading/" + sub.ID, map[string]any{"score": 8, "feedback": "  "}, http.StatusBadRequest},
		{"over scale", "/grading/" + sub.ID, map[string]any{"score": 11, "feedback": "ok"}, http.StatusBadRequest},
		{"missing submission", "/grading/nope", map[string]any{"score": 8, "feedback": "ok"}, http.StatusNotFound},
		{"valid", "/grading/" + sub.ID, map[string]any{"score": 8.5, "feedback": "ok"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(http.MethodPost, tt.path, teacher, tt.body), tt.want)
		})
	}

	rec := env.do(http.MethodPost, "/grading/"+sub.ID, teacher, map[string]any{"score": 11, "feedback": "ok"})
	var resp errorResponse
	decode(t, rec, &resp)
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "score" || !strings.Contains(resp.Fields[0].Error, "0 and 10") {
		t.Errorf("over-scale fields = %+v, want a limit of 10", resp.Fields)
	}

	got, err := env.store.GetSubmission(context.Background(), sub.ID)
	if err != nil || got == nil || got.Score == nil {
		t.Fatalf("GetSubmission: %v, %v", got, err)
	}
	if *got.Score != 85 {
		t.Errorf("stored score = %v, want 85", *got.Score)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestEnv(t, Config{GenerateRate: rate.Every(time.Hour), GenerateBurst: 1})
	_, teacher := env.user("prof", model.UserRoleTeacher)
	subj := env.subject("Matemática")

	rec := env.do(http.MethodPost, "/generate", teacher, map[string]any{"subject_id": subj, "count": 2})
	expectStatus(t, rec, http.StatusCreated)
	var resp generateResponse
	decode(t, rec, &resp)
	if resp.Count != 2 || len(resp.Questions) != 2 {
		t.Fatalf("generated = %+v", resp)
	}
	if resp.Questions[0].CorrectAnswer != "B" || resp.Questions[0].Source != "generated" {
		t.Errorf("stored row = %+v", resp.Questions[0])
	}
	if resp.Message != "2 questions generated." {
		t.Errorf("message = %q", resp.Message)
	}

	rec = env.do(http.MethodPost, "/generate", teacher, map[string]any{"subject_id": subj, "count": 2})
	expectStatus(t, rec, http.StatusTooManyRequests)
	if env.gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", env.gen.calls)
	}
}

func TestUploadMaterial(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, teacher := env.user("prof", model.UserRoleTeacher)

	rec := env.upload("/materials", teacher, "aula 1.pdf", []byte("%PDF-1.4"))
	expectStatus(t, rec, http.StatusCreated)
	var resp uploadResponse
	decode(t, rec, &resp)
	if !strings.HasPrefix(resp.Name, "materials/") || !strings.HasSuffix(resp.Name, "_aula_1.pdf") {
		t.Errorf("name = %q", resp.Name)
	}
	if resp.Handle != "/uploads/"+resp.Name {
		t.Errorf("handle = %q", resp.Handle)
	}
	data, err := os.ReadFile(filepath.Join(env.blobDir, filepath.FromSlash(resp.Name)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Errorf("stored content = %q", data)
	}

	small := newTestEnv(t, Config{MaxUploadBytes: 16})
	_, teacher = small.user("prof", model.UserRoleTeacher)
	rec = small.upload("/materials", teacher, "big.pdf", bytes.Repeat([]byte("x"), 1024))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestImportQuestions(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, teacher := env.user("prof", model.UserRoleTeacher)
	subj := env.subject("Biologia")

	row := func(text, correct string) map[string]string {
		return map[string]string{
			"subject_id": subj, "question_text": text,
			"option_a": "a", "option_b": "b", "option_c": "c", "option_d": "d",
			"correct_answer": correct,
		}
	}
	bad, _ := json.Marshal([]map[string]string{row("q1", "A"), row("q2", "E")})
	rec := env.upload("/questions/import", teacher, "bad.json", bad)
	expectStatus(t, rec, http.StatusBadRequest)
	var resp errorResponse
	decode(t, rec, &resp)
	if len(resp.Fields) == 0 || !strings.HasPrefix(resp.Fields[0].Field, "[1].") {
		t.Errorf("fields = %+v", resp.Fields)
	}
	if n, _ := env.store.QuestionCount(context.Background()); n != 0 {
		t.Fatalf("questions after failed import = %d, want 0", n)
	}

	good, _ := json.Marshal([]map[string]string{row("q1", "A"), row("q2", "d")})
	rec = env.upload("/questions/import", teacher, "good.json", good)
	expectStatus(t, rec, http.StatusCreated)
	if n, _ := env.store.QuestionCount(context.Background()); n != 2 {
		t.Errorf("questions after import = %d, want 2", n)
	}

	rec = env.upload("/questions/import", teacher, "good.json", good)
	expectStatus(t, rec, http.StatusOK)
	var again importResponse
	decode(t, rec, &again)
	if !again.Duplicate {
		t.Errorf("second import = %+v, want duplicate", again)
	}
	if n, _ := env.store.QuestionCount(context.Background()); n != 2 {
		t.Errorf("questions after re-import = %d, want 2", n)
	}
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t, Config{})
	adminID, admin := env.user("root", model.UserRoleAdmin)

	rec := env.do(http.MethodPost, "/admin/users", admin, map[string]string{
		"username": "prof", "password": "longenough", "role": "teacher",
	})
	expectStatus(t, rec, http.StatusCreated)
	var u model.User
	decode(t, rec, &u)

	rec = env.do(http.MethodPost, "/admin/users", admin, map[string]string{
		"username": "prof", "password": "longenough", "role": "teacher",
	})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "prof", "password": "longenough"})
	expectStatus(t, rec, http.StatusOK)
	var login loginResponse
	decode(t, rec, &login)
	if login.ExpiresAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("expires_at = %v, want about a day out", login.ExpiresAt)
	}
	expectStatus(t, env.do(http.MethodGet, "/auth/me", login.Token, nil), http.StatusOK)

	rec = env.do(http.MethodPost, "/admin/users/"+u.ID+"/toggle", admin, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &u)
	if u.Active {
		t.Error("user still active after toggle")
	}
	expectStatus(t, env.do(http.MethodPost, "/admin/users/"+adminID+"/toggle", admin, nil), http.StatusBadRequest)

	// Reactivating must not revive the token issued before deactivation.
	expectStatus(t, env.do(http.MethodPost, "/admin/users/"+u.ID+"/toggle", admin, nil), http.StatusOK)
	expectStatus(t, env.do(http.MethodGet, "/auth/me", login.Token, nil), http.StatusUnauthorized)
	expectStatus(t, env.do(http.MethodPost, "/admin/users/"+u.ID+"/toggle", admin, nil), http.StatusOK)

	rec = env.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "prof", "password": "longenough"})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestRegistrySweep(t *testing.T) {
	r := newRegistry(nil)
	p := r.add("u", "", playCustom, nil)
	if got := r.get(p.id, "u"); got != p {
		t.Fatalf("get = %v", got)
	}
	if got := r.get(p.id, "other"); got != nil {
		t.Fatalf("get by another user = %v", got)
	}
	if n := r.sweep(time.Hour); n != 0 {
		t.Errorf("sweep fresh = %d", n)
	}
	p.lastUsed.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	if n := r.sweep(time.Hour); n != 1 || r.len() != 0 {
		t.Errorf("sweep stale = %d, remaining %d", n, r.len())
	}
}

// failingRecordStore fails the atomic submission write a set number of times.
type failingRecordStore struct {
	*store.Store
	failures int
}

func (f *failingRecordStore) CreateSubmissionWithAnswers(ctx context.Context, sub *model.Submission, answers []model.StudentAnswer) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	return f.Store.CreateSubmissionWithAnswers(ctx, sub, answers)
}

func (e *testEnv) activity(title string, n int) string {
	e.t.Helper()
	subj := e.subject("Português")
	qids := make([]string, n)
	for i := range qids {
		qids[i] = e.question(subj, title+" q"+strconv.Itoa(i+1), "A")
	}
	id, err := e.store.CreateActivity(context.Background(), model.Activity{Title: title, SubjectID: subj}, qids)
	if err != nil {
		e.t.Fatalf("CreateActivity: %v", err)
	}
	return id
}

func (e *testEnv) submissionCount() int {
	e.t.Helper()
	subs, err := e.store.ListSubmissions(context.Background())
	if err != nil {
		e.t.Fatalf("ListSubmissions: %v", err)
	}
	return len(subs)
}

func TestAdvanceAfterRecordIsRejected(t *testing.T) {
	env := newTestEnv(t, Config{})
	studentID, student := env.user("ana", model.UserRoleStudent)
	actID := env.activity("Lista", 1)

	v := env.startPlay(student, map[string]any{"activity_id": actID})
	// Hold the play the way a concurrent advance would after its lookup.
	held := env.h.plays.get(v.ID, studentID)
	if held == nil {
		t.Fatal("play not registered")
	}
	res := env.playThrough(student, v.ID, []int{0})
	if !res.Recorded {
		t.Fatalf("result = %+v, want recorded", res)
	}

	env.h.plays.mu.Lock()
	env.h.plays.plays[held.id] = held
	env.h.plays.mu.Unlock()

	expectStatus(t, env.do(http.MethodPost, "/play/"+v.ID+"/advance", student, nil), http.StatusNotFound)
	if n := env.submissionCount(); n != 1 {
		t.Errorf("submissions = %d, want 1", n)
	}
}

func TestAdvanceRetriesFailedRecord(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, student := env.user("ana", model.UserRoleStudent)
	actID := env.activity("Lista", 2)
	env.h.recorder = submission.NewRecorder(&failingRecordStore{Store: env.store, failures: 1})

	v := env.startPlay(student, map[string]any{"activity_id": actID})
	base := "/play/" + v.ID
	expectStatus(t, env.do(http.MethodPost, base+"/answer", student, map[string]int{"choice": 0}), http.StatusOK)
	expectStatus(t, env.do(http.MethodPost, base+"/advance", student, nil), http.StatusOK)
	expectStatus(t, env.do(http.MethodPost, base+"/answer", student, map[string]int{"choice": 1}), http.StatusOK)

	expectStatus(t, env.do(http.MethodPost, base+"/advance", student, nil), http.StatusInternalServerError)
	if n := env.submissionCount(); n != 0 {
		t.Fatalf("submissions after failed write = %d, want 0", n)
	}

	rec := env.do(http.MethodGet, base, student, nil)
	expectStatus(t, rec, http.StatusOK)
	var state playView
	decode(t, rec, &state)
	if state.State != session.Finished.String() {
		t.Errorf("kept play state = %q, want finished", state.State)
	}

	rec = env.do(http.MethodPost, base+"/advance", student, nil)
	expectStatus(t, rec, http.StatusOK)
	var adv advanceResponse
	decode(t, rec, &adv)
	if !adv.Finished || adv.Result == nil || !adv.Result.Recorded || adv.Result.CorrectCount != 1 {
		t.Fatalf("retry = %+v", adv)
	}
	if n := env.submissionCount(); n != 1 {
		t.Errorf("submissions after retry = %d, want 1", n)
	}
	expectStatus(t, env.do(http.MethodPost, base+"/advance", student, nil), http.StatusNotFound)
}
