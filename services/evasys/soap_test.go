package evasyssvc

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/evasys"
	testutil "github.com/wunderbyte/evasync/tests"
)

type soapCall struct {
	action string
	body   string
}

// newTestServer returns a server answering every call with the given body
// (wrapped in an envelope) and a pointer to the last captured request.
func newTestServer(t *testing.T, respBody string) (*httptest.Server, *soapCall) {
	last := &soapCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := ioutil.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request: %v", err)
		}
		last.action = r.Header.Get("SOAPAction")
		last.body = string(raw)
		fmt.Fprint(w, envelopeWith(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, last
}

func envelopeWith(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<SOAP-ENV:Body>` + body + `</SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

func newTestClient(url string) *SoapClient {
	return NewSoapClient(core.EvasysConfig{
		Endpoint: url,
		Login:    "soapuser",
		Password: "soappwd",
		Timeout:  5 * time.Second,
	}, testutil.Logger{})
}

func Test_SoapClient_notConfigured(t *testing.T) {
	client := NewSoapClient(core.EvasysConfig{}, testutil.Logger{})
	_, err := client.FetchPeriods(context.Background())
	assert.Equal(t, evasys.ErrNotConnected, err)
}

func Test_SoapClient_authHeader(t *testing.T) {
	srv, last := newTestServer(t, `<GetAllPeriodsResponse><Periods></Periods></GetAllPeriodsResponse>`)
	client := newTestClient(srv.URL)

	_, err := client.FetchPeriods(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "soapserver-v91.wsdl#GetAllPeriods", last.action)
	assert.Contains(t, last.body, "<Login>soapuser</Login>")
	assert.Contains(t, last.body, "<Password>soappwd</Password>")
	assert.Contains(t, last.body, "<Ticket></Ticket>")
}

func Test_SoapClient_FetchPeriods(t *testing.T) {
	srv, _ := newTestServer(t, `<GetAllPeriodsResponse><Periods>`+
		`<item><m_nPeriodId>1</m_nPeriodId><m_sTitel>Winter 2024</m_sTitel></item>`+
		`<item><m_nPeriodId>2</m_nPeriodId><m_sTitel>Summer 2025</m_sTitel></item>`+
		`</Periods></GetAllPeriodsResponse>`)
	client := newTestClient(srv.URL)

	periods, err := client.FetchPeriods(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []evasys.Period{
		{ID: 1, Title: "Winter 2024"},
		{ID: 2, Title: "Summer 2025"},
	}, periods)
}

func Test_SoapClient_GetPeriod(t *testing.T) {
	srv, last := newTestServer(t, `<GetPeriodResponse>`+
		`<m_nPeriodId>2</m_nPeriodId><m_sTitel>Summer 2025</m_sTitel>`+
		`</GetPeriodResponse>`)
	client := newTestClient(srv.URL)

	period, err := client.GetPeriod(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, evasys.Period{ID: 2, Title: "Summer 2025"}, period)
	assert.Equal(t, "soapserver-v91.wsdl#GetPeriod", last.action)
	assert.Contains(t, last.body, "<nPeriodId>2</nPeriodId>")
}

func Test_SoapClient_FetchSubunits_itemNaming(t *testing.T) {
	// servers differ in list item naming; both <Unit> and <item> must parse
	srv, _ := newTestServer(t, `<GetSubunitsResponse><Units>`+
		`<Unit><m_nId>3</m_nId><m_sName>Continuing Education</m_sName></Unit>`+
		`</Units></GetSubunitsResponse>`)
	client := newTestClient(srv.URL)

	units, err := client.FetchSubunits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []evasys.Subunit{{ID: 3, Name: "Continuing Education"}}, units)
}

func Test_SoapClient_FetchForms(t *testing.T) {
	srv, last := newTestServer(t, `<GetAllFormsResponse><SimpleForms>`+
		`<item><ID>10</ID><Name>STD</Name></item>`+
		`</SimpleForms></GetAllFormsResponse>`)
	client := newTestClient(srv.URL)

	forms, err := client.FetchForms(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []evasys.SimpleForm{{ID: 10, Name: "STD"}}, forms)

	// the subunit restriction travels in the nested restriction list
	assert.Contains(t, last.body, "<UsageRestrictionList><Subunits><ID>3</ID></Subunits></UsageRestrictionList>")
	assert.Contains(t, last.body, "<IncludeUsageRestrictions>true</IncludeUsageRestrictions>")
}

func Test_SoapClient_GetForm(t *testing.T) {
	srv, last := newTestServer(t, `<GetFormResponse>`+
		`<FormId>10</FormId><FormName>STD</FormName><FormTitle>Standard Course Evaluation</FormTitle>`+
		`</GetFormResponse>`)
	client := newTestClient(srv.URL)

	form, err := client.GetForm(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, evasys.Form{ID: 10, Name: "STD", Title: "Standard Course Evaluation"}, form)
	assert.Contains(t, last.body, "<IdType>INTERNAL</IdType>")
}

func Test_SoapClient_InsertUser(t *testing.T) {
	srv, last := newTestServer(t, `<InsertUserResponse>`+
		`<m_nId>77</m_nId><m_sExternalId>evasys_5</m_sExternalId>`+
		`</InsertUserResponse>`)
	client := newTestClient(srv.URL)

	resp, err := client.InsertUser(context.Background(), evasys.UserData{
		ExternalID: "evasys_5",
		FirstName:  "Ada",
		LastName:   "Zimmer",
		Email:      "ada@uni.test",
		SubunitID:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, evasys.UserResponse{ID: 77, ExternalID: "evasys_5"}, resp)

	assert.Contains(t, last.body, "<m_sExternalId>evasys_5</m_sExternalId>")
	assert.Contains(t, last.body, "<m_sSurName>Zimmer</m_sSurName>")
	assert.Contains(t, last.body, "<m_nFbid>3</m_nFbid>")
}

func Test_SoapClient_InsertCourse(t *testing.T) {
	srv, last := newTestServer(t, `<InsertCourseResponse>`+
		`<m_nCourseId>4</m_nCourseId><m_sExternalId>urise_42</m_sExternalId>`+
		`<m_nUserId>77</m_nUserId><m_nPeriodId>2</m_nPeriodId>`+
		`</InsertCourseResponse>`)
	client := newTestClient(srv.URL)

	resp, err := client.InsertCourse(context.Background(), evasys.CourseData{
		Title:            "Welding 101",
		CourseType:       5,
		PublicID:         "urise_42",
		ExternalID:       "urise_42",
		CustomFieldsJSON: `{"1":12}`,
		InstructorID:     77,
		SubunitID:        3,
		PeriodID:         2,
		SecondaryInstructors: []evasys.Instructor{
			{ID: 78, ExternalID: "evasys_6", FirstName: "Ben", LastName: "Acker", SubunitID: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, evasys.CourseResponse{CourseID: 4, ExternalID: "urise_42", UserID: 77, PeriodID: 2}, resp)

	assert.Contains(t, last.body, "<m_nCourseType>5</m_nCourseType>")
	assert.Contains(t, last.body, "<m_sPubCourseId>urise_42</m_sPubCourseId>")
	assert.Contains(t, last.body, "<m_sCustomFieldsJSON>{&#34;1&#34;:12}</m_sCustomFieldsJSON>")
	assert.Contains(t, last.body, "<m_aoSecondaryInstructors><Instructor>")
	assert.Contains(t, last.body, "<m_sSurName>Acker</m_sSurName>")
}

func Test_SoapClient_surveyLifecycle(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		srv, last := newTestServer(t, `<InsertCentralSurveyResponse>`+
			`<m_nSurveyId>9</m_nSurveyId><m_nFrmid>10</m_nFrmid>`+
			`</InsertCentralSurveyResponse>`)
		client := newTestClient(srv.URL)

		resp, err := client.InsertSurvey(context.Background(), evasys.SurveyData{
			UserID: 77, CourseID: 4, FormID: 10, PeriodID: 2, Type: "c",
		})
		require.NoError(t, err)
		assert.Equal(t, evasys.SurveyResponse{SurveyID: 9, FormID: 10}, resp)
		assert.Contains(t, last.body, "<sSurveyType>c</sSurveyType>")
	})

	t.Run("delete honors two step delete", func(t *testing.T) {
		srv, last := newTestServer(t, `<DeleteSurveyResponse></DeleteSurveyResponse>`)
		client := newTestClient(srv.URL)

		require.NoError(t, client.DeleteSurvey(context.Background(), 9))
		assert.Contains(t, last.body, "<SurveyId>9</SurveyId>")
		assert.Contains(t, last.body, "<IgnoreTwoStepDelete>false</IgnoreTwoStepDelete>")
	})

	t.Run("open", func(t *testing.T) {
		srv, last := newTestServer(t, `<OpenSurveyResponse></OpenSurveyResponse>`)
		client := newTestClient(srv.URL)

		require.NoError(t, client.OpenSurvey(context.Background(), 9))
		assert.Contains(t, last.body, "<nSurveyId>9</nSurveyId>")
	})

	t.Run("final close sends the report", func(t *testing.T) {
		srv, last := newTestServer(t, `<CloseSurveyResponse></CloseSurveyResponse>`)
		client := newTestClient(srv.URL)

		require.NoError(t, client.CloseSurvey(context.Background(), 9, true))
		assert.Contains(t, last.body, "<bSendReportToInstructor>true</bSendReportToInstructor>")
	})

	t.Run("qr code", func(t *testing.T) {
		srv, _ := newTestServer(t, `<GetOnlineQRCodeResponse> https://evasys.local/qr/9.png </GetOnlineQRCodeResponse>`)
		client := newTestClient(srv.URL)

		qr, err := client.GetQRCode(context.Background(), 9)
		require.NoError(t, err)
		assert.Equal(t, "https://evasys.local/qr/9.png", qr)
	})

	t.Run("direct online link", func(t *testing.T) {
		srv, last := newTestServer(t, `<GetPswdsBySurveyResponse><OnlineCodes>`+
			`<m_sDirectOnlineLink>https://evasys.local/online/9</m_sDirectOnlineLink>`+
			`</OnlineCodes></GetPswdsBySurveyResponse>`)
		client := newTestClient(srv.URL)

		link, err := client.GetSurveyURL(context.Background(), 9)
		require.NoError(t, err)
		assert.Equal(t, "https://evasys.local/online/9", link)
		assert.Contains(t, last.body, "<nPswdCount>0</nPswdCount>")
	})
}

func Test_SoapClient_fault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, envelopeWith(`<SOAP-ENV:Fault>`+
			`<faultcode>soap:Server</faultcode>`+
			`<faultstring>ERR_106: survey not found</faultstring>`+
			`</SOAP-ENV:Fault>`))
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv.URL)

	err := client.DeleteSurvey(context.Background(), 9)
	require.Error(t, err)
	var rErr *evasys.RemoteError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, "DeleteSurvey", rErr.Op)
	assert.Contains(t, err.Error(), "ERR_106")
}

func Test_SoapClient_unexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(srv.URL)

	_, err := client.FetchPeriods(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}
