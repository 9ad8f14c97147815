package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/ioutil"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/wunderbyte/evasync/apps/api/echo"
	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/evasys"
	"github.com/wunderbyte/evasync/core/queue"
	"github.com/wunderbyte/evasync/core/refdata"
	evasyssvc "github.com/wunderbyte/evasync/services/evasys"
	dummydb "github.com/wunderbyte/evasync/storage/database/dummy"
	testutil "github.com/wunderbyte/evasync/tests"
)

func setup(t *testing.T) (*commandLine, *dummydb.DB, *evasyssvc.DummyClient) {
	logger = log.New(ioutil.Discard, "", 0)

	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := &core.Config{
		TestMode:  true,
		AppName:   "Evasync",
		SecretKey: "secret",
		Evasys: core.EvasysConfig{
			Endpoint: "https://evasys.local/soap",
			Login:    "soapuser",
			Subunit:  refdata.EncodeKey(3, "Continuing Education"),
		},
	}

	client := evasyssvc.NewDummyClient()
	client.Forms = []evasys.SimpleForm{{ID: 10, Name: "STD"}}
	client.FormTitles = map[int]string{10: "Standard Course Evaluation"}

	_, translator := testutil.NewValidator()
	instructorRepo := dummydb.NewInstructorRepository(db)
	queueSvc := queue.NewService(dummydb.NewJobRepository(db))
	engine := binding.NewEngine(
		dummydb.NewBindingRepository(db), instructorRepo, client, queueSvc,
		conf.Evasys, testutil.Logger{}, nil,
	)
	worker := queue.NewWorker(queueSvc, core.WorkerConfig{MaxAttempts: 3}, testutil.Logger{})
	binding.RegisterHandlers(worker, engine, testutil.Logger{})

	cli := &commandLine{
		conf:        conf,
		instructors: instructorRepo,
		refdataSvc:  refdata.NewService(client, refdata.NewMemCache(), conf.Evasys, testutil.Logger{}, translator),
		queueSvc:    queueSvc,
		worker:      worker,
	}
	return cli, db, client
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_importInstructor(t *testing.T) {
	cli, db, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"importinstructor"}, wantErr: errHelp},
		{name: "missing email", args: []string{"importinstructor", "-id", "7", "-first", "Ada", "-last", "Zimmer"}, wantErr: errHelp},
		{name: "blank email", args: []string{"importinstructor", "-id", "7", "-email", "  "}, wantErr: errHelp},
		{name: "import", args: []string{"importinstructor", "-id", "7", "-first", " Ada ", "-last", "Zimmer", "-email", " Ada@Uni.test ", "-organizer"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	repo := dummydb.NewInstructorRepository(db)
	instr, err := repo.GetInstructor(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Zimmer", instr.LastName)
	// flag values are normalized before hitting the store
	assert.Equal(t, "Ada", instr.FirstName)
	assert.Equal(t, "ada@uni.test", instr.Email)

	recipients, err := repo.QueryRecipients(context.Background())
	require.NoError(t, err)
	assert.Len(t, recipients, 1)
}

func Test_commandLine_refreshForms(t *testing.T) {
	cli, _, client := setup(t)

	require.NoError(t, cli.run([]string{"admin", "refreshforms"}))
	// the cache was rebuilt with one GetForm call per form
	assert.Contains(t, client.Calls, "GetForm[10]")
}

func Test_commandLine_syncOption(t *testing.T) {
	cli, _, _ := setup(t)
	ctx := context.Background()

	if err := cli.run([]string{"admin", "syncoption"}); err != errHelp {
		t.Errorf("cli.run() error = %v, wantErr %v", err, errHelp)
	}
	if err := cli.run([]string{"admin", "syncoption", "-option", "42"}); err != queue.ErrNotFound {
		t.Errorf("cli.run() error = %v, wantErr %v", err, queue.ErrNotFound)
	}

	payload := map[string]interface{}{"data": map[string]interface{}{"bindingid": 1}}
	job, err := cli.queueSvc.Schedule(ctx, queue.KindReconcile, 42, time.Now().UTC(), payload)
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "syncoption", "-option", "42"}))

	jobs, err := cli.queueSvc.Pending(ctx, 42)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.NotEqual(t, job.ID, jobs[0].ID)
	assert.Equal(t, queue.StatusPending, jobs[0].Status)
	assert.JSONEq(t, string(job.Payload), string(jobs[0].Payload))
}

func Test_commandLine_token(t *testing.T) {
	cli, _, _ := setup(t)

	if err := cli.run([]string{"admin", "token"}); err != errHelp {
		t.Errorf("cli.run() error = %v, wantErr %v", err, errHelp)
	}
	require.NoError(t, cli.run([]string{"admin", "token", "-service", "booking"}))

	ss, err := echoapi.GenerateToken(cli.conf, "booking")
	require.NoError(t, err)
	claims := new(echoapi.Claims)
	_, err = jwt.ParseWithClaims(ss, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "booking", claims.Service)
}
