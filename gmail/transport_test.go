package gmail

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/athomewithrose/homeletter"
	"github.com/athomewithrose/homeletter/mock"
)

func testConfig() *homeletter.Config {
	var config homeletter.Config
	config.SMTP.Host = "smtp.gmail.com"
	config.SMTP.Port = 587
	config.SMTP.FromName = "Ashley Rose"
	config.SMTP.Interval = 100 * time.Millisecond
	config.Site.Name = "At home with Rose"
	config.Site.URL = "https://ashleyrose.com"
	return &config
}

func TestNewTransport(t *testing.T) {
	config := testConfig()

	var logs bytes.Buffer
	transport := NewTransport(config, zerolog.New(&logs))
	assert.IsType(t, &LoggingTransport{}, transport)
	assert.Contains(t, logs.String(), "SMTP credentials are not set")

	config.SMTP.Username = "ashley@example.com"
	config.SMTP.Password = "abcdabcdabcdabcd"
	transport = NewTransport(config, zerolog.Nop())
	require.IsType(t, &SMTPTransport{}, transport)
	assert.Equal(t, 100*time.Millisecond, transport.Interval())
}

func TestLoggingTransport(t *testing.T) {
	var logs bytes.Buffer
	transport := NewLoggingTransport(zerolog.New(&logs))

	require.NoError(t, transport.Verify(context.Background()))
	assert.Zero(t, transport.Interval())

	err := transport.Send(context.Background(), &homeletter.Message{
		To:      "foo@example.com",
		Subject: "Hello",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"to":"foo@example.com"`)
	assert.Contains(t, logs.String(), `"subject":"Hello"`)
	assert.Contains(t, logs.String(), `"html_bytes":9`)
}

func TestSMTPTransportVerifyUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	config := testConfig()
	config.SMTP.Host = "127.0.0.1"
	config.SMTP.Port = port
	config.SMTP.Username = "ashley@example.com"
	config.SMTP.Password = "secret"

	err = NewSMTPTransport(config).Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}

func TestSMTPTransportSendCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSMTPTransport(testConfig()).Send(ctx, &homeletter.Message{To: "foo@example.com"})
	assert.True(t, errors.Is(err, context.Canceled))
}

// silentServer accepts SMTP connections and never sends a greeting.
func silentServer(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	return l.Addr().(*net.TCPAddr).Port
}

func TestSMTPTransportHonoursDeadline(t *testing.T) {
	config := testConfig()
	config.SMTP.Host = "127.0.0.1"
	config.SMTP.Port = silentServer(t)
	config.SMTP.Username = "ashley@example.com"
	config.SMTP.Password = "secret"
	transport := NewSMTPTransport(config)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := transport.Send(ctx, &homeletter.Message{To: "foo@example.com", Subject: "Hello", Text: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, int64(time.Since(start)), int64(5*time.Second))

	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = transport.Verify(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSendWelcome(t *testing.T) {
	transport := new(mock.MailTransport)

	var msg *homeletter.Message
	transport.On("Send", tmock.Anything, tmock.Anything).Run(func(args tmock.Arguments) {
		msg = args.Get(1).(*homeletter.Message)
	}).Return(nil)

	unsubscribeURL := homeletter.UnsubscribeURL("https://ashleyrose.com", "0f8fad5b-d9cb-469f-a165-70867728950e")
	err := NewWelcomeService(testConfig(), transport).SendWelcome(context.Background(), "foo@example.com", unsubscribeURL)
	require.NoError(t, err)

	require.NotNil(t, msg)
	assert.Equal(t, "foo@example.com", msg.To)
	assert.Equal(t, "Welcome to At home with Rose", msg.Subject)
	assert.Contains(t, msg.HTML, "Thank you for subscribing to At home with Rose!")
	assert.Contains(t, msg.HTML, "https://ashleyrose.com/blog")
	assert.Contains(t, msg.Text, unsubscribeURL)
}
