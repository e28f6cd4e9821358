package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

var openSettings = model.SystemSettings{RegistrationOpen: true, MaxRegistrations: 100, EventName: "Sports Day"}

func newTestIntake(ledger *memoryLedger, settings model.SystemSettings, tokens TokenGenerator, mailer *mockMailer) *IntakeService {
	return NewIntakeService(
		ledger.repo(),
		staticSettings(settings),
		tokens,
		mailer,
		time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		testLogger(),
	)
}

func validRequest() *IntakeRequest {
	return &IntakeRequest{
		QID:         "29063412345",
		FullName:    "Ahmed Ali",
		AgeGroup:    model.AgeGroupAdult,
		Email:       "Ahmed@Example.com",
		Nationality: "Qatar",
		Gender:      model.GenderMale,
	}
}

func TestIntakeSubmitSingle(t *testing.T) {
	ledger := &memoryLedger{}
	mailer := &mockMailer{}
	svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: []string{"SV-00001"}}, mailer)

	res, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	svc.Wait()

	if res.Primary.AccessToken != "SV-00001" {
		t.Errorf("AccessToken = %q", res.Primary.AccessToken)
	}
	if res.Primary.Email != "ahmed@example.com" {
		t.Errorf("email не приведён к нижнему регистру: %q", res.Primary.Email)
	}
	if !res.Primary.IsPrimary || res.FamilyCount() != 0 {
		t.Errorf("IsPrimary=%v FamilyCount=%d", res.Primary.IsPrimary, res.FamilyCount())
	}

	sent := mailer.registrations()
	if len(sent) != 1 {
		t.Fatalf("отправлено писем: %d, ожидалось 1", len(sent))
	}
	if sent[0].to != "ahmed@example.com" || len(sent[0].people) != 1 {
		t.Errorf("письмо: to=%q people=%d", sent[0].to, len(sent[0].people))
	}
	if sent[0].event.Name != "Sports Day" {
		t.Errorf("event.Name = %q", sent[0].event.Name)
	}
}

func TestIntakeSubmitValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *IntakeRequest)
		wantField string
	}{
		{name: "короткий QID", mutate: func(r *IntakeRequest) { r.QID = "1234" }, wantField: "qid"},
		{name: "буквы в QID", mutate: func(r *IntakeRequest) { r.QID = "2906341234A" }, wantField: "qid"},
		{name: "пустое имя", mutate: func(r *IntakeRequest) { r.FullName = "  " }, wantField: "fullName"},
		{name: "цифры в имени", mutate: func(r *IntakeRequest) { r.FullName = "Agent 007" }, wantField: "fullName"},
		{name: "некорректный email", mutate: func(r *IntakeRequest) { r.Email = "not-an-email" }, wantField: "email"},
		{name: "неизвестная возрастная группа", mutate: func(r *IntakeRequest) { r.AgeGroup = "TEEN" }, wantField: "ageGroup"},
		{name: "неизвестный пол", mutate: func(r *IntakeRequest) { r.Gender = "OTHER" }, wantField: "gender"},
		{name: "нет гражданства", mutate: func(r *IntakeRequest) { r.Nationality = "" }, wantField: "nationality"},
		{
			name: "ошибка в члене семьи",
			mutate: func(r *IntakeRequest) {
				r.FamilyMembers = []FamilyMemberInput{{QID: "1", FullName: "Sara Ali", AgeGroup: model.AgeGroupKids, Gender: model.GenderFemale}}
			},
			wantField: "familyMembers[0].qid",
		},
		{
			name:      "формула вместо гражданства",
			mutate:    func(r *IntakeRequest) { r.Nationality = `=HYPERLINK("http://evil","x")` },
			wantField: "nationality",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &memoryLedger{}
			svc := newTestIntake(ledger, openSettings, &seqTokens{}, &mockMailer{})
			req := validRequest()
			tt.mutate(req)

			_, err := svc.Submit(context.Background(), req)
			se, ok := AsError(err)
			if !ok || se.Kind != KindValidation {
				t.Fatalf("ожидалась ошибка Validation, получено %v", err)
			}
			if _, ok := se.Fields[tt.wantField]; !ok {
				t.Errorf("нет сообщения для поля %q: %v", tt.wantField, se.Fields)
			}
			if ledger.size() != 0 {
				t.Errorf("созданы записи при ошибке валидации: %d", ledger.size())
			}
		})
	}
}

func TestIntakeSubmitPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		existing *model.Registration
		settings model.SystemSettings
		wantKind Kind
	}{
		{
			name:     "QID уже зарегистрирован",
			existing: &model.Registration{QID: "29063412345", Email: "other@example.com", AccessToken: "SV-99999", IsPrimary: true},
			settings: openSettings,
			wantKind: KindConflict,
		},
		{
			name:     "email уже использован основным регистрантом",
			existing: &model.Registration{QID: "29063400000", Email: "ahmed@example.com", AccessToken: "SV-99999", IsPrimary: true},
			settings: openSettings,
			wantKind: KindConflict,
		},
		{
			name:     "регистрация закрыта",
			settings: model.SystemSettings{RegistrationOpen: false, MaxRegistrations: 100},
			wantKind: KindClosed,
		},
		{
			name:     "достигнут лимит",
			existing: &model.Registration{QID: "29063400000", Email: "x@example.com", AccessToken: "SV-99999", IsPrimary: true},
			settings: model.SystemSettings{RegistrationOpen: true, MaxRegistrations: 1},
			wantKind: KindCapacity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &memoryLedger{}
			if tt.existing != nil {
				ledger.add(tt.existing)
			}
			before := ledger.size()
			mailer := &mockMailer{}
			svc := newTestIntake(ledger, tt.settings, &seqTokens{tokens: []string{"SV-00001"}}, mailer)

			_, err := svc.Submit(context.Background(), validRequest())
			if !IsKind(err, tt.wantKind) {
				t.Fatalf("ожидался %s, получено %v", tt.wantKind, err)
			}
			svc.Wait()
			if ledger.size() != before {
				t.Errorf("созданы записи: было %d, стало %d", before, ledger.size())
			}
			if len(mailer.registrations()) != 0 {
				t.Error("письмо не должно отправляться")
			}
		})
	}
}

func TestIntakeConflictMessageIsGeneric(t *testing.T) {
	ledger := &memoryLedger{}
	ledger.add(&model.Registration{QID: "29063412345", Email: "a@example.com", AccessToken: "SV-1", IsPrimary: true})
	svc := newTestIntake(ledger, openSettings, &seqTokens{}, &mockMailer{})

	_, errQID := svc.Submit(context.Background(), validRequest())

	ledger2 := &memoryLedger{}
	ledger2.add(&model.Registration{QID: "29063400000", Email: "ahmed@example.com", AccessToken: "SV-1", IsPrimary: true})
	svc2 := newTestIntake(ledger2, openSettings, &seqTokens{}, &mockMailer{})
	_, errEmail := svc2.Submit(context.Background(), validRequest())

	a, _ := AsError(errQID)
	b, _ := AsError(errEmail)
	if a == nil || b == nil {
		t.Fatalf("ожидались ошибки Conflict: %v, %v", errQID, errEmail)
	}
	if a.Message != b.Message {
		t.Errorf("сообщения различаются: %q vs %q", a.Message, b.Message)
	}
	if a.Field != "qid" || b.Field != "email" {
		t.Errorf("поля: %q, %q", a.Field, b.Field)
	}
}

func TestIntakeTokenCollisionRetry(t *testing.T) {
	ledger := &memoryLedger{}
	ledger.add(&model.Registration{QID: "29063400000", Email: "x@example.com", AccessToken: "SV-00001", IsPrimary: true})
	svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: []string{"SV-00001", "SV-00001", "SV-00002"}}, &mockMailer{})

	res, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	svc.Wait()
	if res.Primary.AccessToken != "SV-00002" {
		t.Errorf("AccessToken = %q, ожидался SV-00002", res.Primary.AccessToken)
	}
}

func TestIntakeTokenExhausted(t *testing.T) {
	ledger := &memoryLedger{}
	ledger.add(&model.Registration{QID: "29063400000", Email: "x@example.com", AccessToken: "SV-00001", IsPrimary: true})
	tokens := make([]string, maxTokenAttempts)
	for i := range tokens {
		tokens[i] = "SV-00001"
	}
	svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: tokens}, &mockMailer{})

	_, err := svc.Submit(context.Background(), validRequest())
	if err == nil {
		t.Fatal("ожидалась ошибка исчерпания попыток")
	}
	if KindOf(err) != "" {
		t.Errorf("исчерпание попыток: внутренняя ошибка, получен вид %s", KindOf(err))
	}
}

func TestIntakeFailureRollsBackAllRows(t *testing.T) {
	family := []FamilyMemberInput{
		{QID: "31063400001", FullName: "Sara Ali", AgeGroup: model.AgeGroupKids, Gender: model.GenderFemale},
		{QID: "31063400003", FullName: "Mona Ali", AgeGroup: model.AgeGroupYouth, Gender: model.GenderFemale},
	}

	tests := []struct {
		name       string
		failCreate int
		tokens     []string
	}{
		{name: "сбой БД на первом члене семьи", failCreate: 2, tokens: []string{"SV-00001", "SV-00002", "SV-00003"}},
		{name: "сбой БД на последнем члене семьи", failCreate: 3, tokens: []string{"SV-00001", "SV-00002", "SV-00003"}},
		{name: "коды доступа исчерпаны на члене семьи", tokens: func() []string {
			tokens := []string{"SV-00001"}
			for i := 0; i < maxTokenAttempts; i++ {
				tokens = append(tokens, "SV-00001")
			}
			return tokens
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &memoryLedger{failCreate: tt.failCreate, failCreateErr: errors.New("db down")}
			mailer := &mockMailer{}
			svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: tt.tokens}, mailer)

			req := validRequest()
			req.FamilyMembers = family
			_, err := svc.Submit(context.Background(), req)
			svc.Wait()

			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if KindOf(err) != "" {
				t.Errorf("ожидалась внутренняя ошибка, получен вид %s", KindOf(err))
			}
			if n := ledger.size(); n != 0 {
				t.Errorf("после отката осталось записей: %d", n)
			}
			if sent := mailer.registrations(); len(sent) != 0 {
				t.Errorf("отправлено писем: %d, ожидалось 0", len(sent))
			}

			// Повторная заявка после сбоя проходит: основной регистрант не заблокирован
			retry := newTestIntake(&memoryLedger{rows: ledger.rows}, openSettings, &seqTokens{tokens: []string{"SV-00007", "SV-00008", "SV-00009"}}, &mockMailer{})
			req = validRequest()
			req.FamilyMembers = family
			if _, err := retry.Submit(context.Background(), req); err != nil {
				t.Errorf("повторная заявка: %v", err)
			}
			retry.Wait()
		})
	}
}

func TestIntakeRaceOnInsertIsConflict(t *testing.T) {
	// Предпроверка пропускает, но вставка упирается в ограничение
	ledger := &memoryLedger{}
	repo := ledger.repo()
	repo.existsQIDFn = func(context.Context, string) (bool, error) { return false, nil }
	ledger.add(&model.Registration{QID: "29063412345", Email: "other@example.com", AccessToken: "SV-1", IsPrimary: true})

	svc := NewIntakeService(repo, staticSettings(openSettings), &seqTokens{tokens: []string{"SV-00002"}}, &mockMailer{},
		time.Now(), testLogger())

	_, err := svc.Submit(context.Background(), validRequest())
	se, ok := AsError(err)
	if !ok || se.Kind != KindConflict || se.Field != "qid" {
		t.Fatalf("ожидался Conflict по qid, получено %v", err)
	}
}

func TestIntakeFamilySkip(t *testing.T) {
	ledger := &memoryLedger{}
	// Второй член семьи уже зарегистрирован
	ledger.add(&model.Registration{QID: "31063400002", Email: "old@example.com", AccessToken: "SV-50000", IsPrimary: true})
	mailer := &mockMailer{}
	svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: []string{"SV-00001", "SV-00002", "SV-00003"}}, mailer)

	req := validRequest()
	req.FamilyMembers = []FamilyMemberInput{
		{QID: "31063400001", FullName: "Sara Ali", AgeGroup: model.AgeGroupKids, Gender: model.GenderFemale},
		{QID: "310-6340-0002", FullName: "Omar Ali", AgeGroup: model.AgeGroupKids, Gender: model.GenderMale},
		{QID: "31063400003", FullName: "Mona Ali", AgeGroup: model.AgeGroupYouth, Gender: model.GenderFemale},
	}

	res, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	svc.Wait()

	if res.FamilyCount() != 2 {
		t.Errorf("FamilyCount = %d, ожидалось 2", res.FamilyCount())
	}
	if ledger.size() != 1+3 {
		t.Errorf("всего записей %d, ожидалось 4", ledger.size())
	}
	for _, m := range res.Family {
		if m.IsPrimary {
			t.Error("член семьи помечен как основной")
		}
		if m.Email != res.Primary.Email || m.Nationality != res.Primary.Nationality {
			t.Errorf("член семьи не унаследовал email/гражданство: %+v", m)
		}
	}
	if res.Family[0].FullName != "Sara Ali" || res.Family[1].FullName != "Mona Ali" {
		t.Errorf("порядок членов семьи нарушен: %s, %s", res.Family[0].FullName, res.Family[1].FullName)
	}

	sent := mailer.registrations()
	if len(sent) != 1 {
		t.Fatalf("отправлено писем: %d, ожидалось одно общее", len(sent))
	}
	if len(sent[0].people) != 3 {
		t.Errorf("в письме %d человек, ожидалось 3", len(sent[0].people))
	}
}

func TestIntakeEmailFailureDoesNotFail(t *testing.T) {
	ledger := &memoryLedger{}
	mailer := &mockMailer{err: errors.New("smtp недоступен")}
	svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: []string{"SV-00001"}}, mailer)

	res, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("ошибка письма не должна влиять на результат: %v", err)
	}
	svc.Wait()
	if res.Primary.ID == "" || ledger.size() != 1 {
		t.Errorf("регистрация не сохранена")
	}
}

func TestIntakeConcurrentSameQID(t *testing.T) {
	ledger := &memoryLedger{}
	svc := newTestIntake(ledger, openSettings, &seqTokens{tokens: []string{"SV-00001", "SV-00002", "SV-00003", "SV-00004"}}, &mockMailer{})

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := validRequest()
			req.Email = "user" + string(rune('a'+i)) + "@example.com"
			_, errs[i] = svc.Submit(context.Background(), req)
		}(i)
	}
	wg.Wait()
	svc.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case IsKind(err, KindConflict):
			conflicts++
		default:
			t.Errorf("неожиданная ошибка: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("успешных %d, конфликтов %d", ok, conflicts)
	}
}

func TestCheckDuplicate(t *testing.T) {
	ledger := &memoryLedger{}
	ledger.add(&model.Registration{QID: "29063412345", Email: "ahmed@example.com", AccessToken: "SV-1", IsPrimary: true})
	svc := newTestIntake(ledger, openSettings, &seqTokens{}, &mockMailer{})

	tests := []struct {
		name      string
		qid       string
		email     string
		wantQID   bool
		wantEmail bool
	}{
		{name: "оба заняты", qid: "290-6341-2345", email: "AHMED@example.com", wantQID: true, wantEmail: true},
		{name: "свободны", qid: "29063400000", email: "new@example.com"},
		{name: "пустые значения не проверяются", qid: "", email: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.CheckDuplicate(context.Background(), tt.qid, tt.email)
			if err != nil {
				t.Fatalf("CheckDuplicate: %v", err)
			}
			if res.QIDExists != tt.wantQID || res.EmailExists != tt.wantEmail {
				t.Errorf("получено %+v", res)
			}
		})
	}
}

func TestPrefill(t *testing.T) {
	svc := newTestIntake(&memoryLedger{}, openSettings, &seqTokens{}, &mockMailer{})

	p := svc.Prefill("29063412345")
	if !p.Valid || p.BirthYear != 1990 || p.AgeGroup != model.AgeGroupAdult {
		t.Errorf("Prefill = %+v", p)
	}
	if svc.Prefill("1234").Valid {
		t.Error("короткий QID не должен быть валидным")
	}
}
