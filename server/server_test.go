package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/host"
	"github.com/0xADE/ade-progd/internal/indexer"
	"github.com/0xADE/ade-progd/internal/logging"
	"github.com/0xADE/ade-progd/internal/programs"
	"github.com/0xADE/ade-progd/internal/settings"
	"github.com/0xADE/ade-progd/parser"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server", func() {
	var (
		dataDir  string
		launcher *fakeLauncher
		plugin   *programs.Plugin
		srv      *Server
		ctx      context.Context
	)

	BeforeEach(func() {
		var err error
		dataDir, err = os.MkdirTemp("", "ade-server-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dataDir)

		console, err := host.NewConsole(logging.Discard())
		Expect(err).NotTo(HaveOccurred())
		launcher = &fakeLauncher{}
		scanner := &staticScanner{
			native: []*catalog.Native{{Name: "Notepad", Path: "/usr/bin/notepad", UniqueIdentifier: "N1", Enabled: true}},
			packaged: []*catalog.Packaged{{
				Title:            "Notepad",
				Names:            map[string]string{"de": "Notizblock"},
				PackageLocation:  "/opt/notepad",
				UniqueIdentifier: "P1",
				Enabled:          true,
			}},
		}
		ctx = context.Background()

		plugin = programs.New(programs.Options{
			DataDir:        dataDir,
			SettingsPath:   filepath.Join(dataDir, "settings.yaml"),
			StartupTimeout: 5 * time.Second,
		}, scanner, launcher, console, logging.Discard())
		Expect(plugin.Init(ctx)).To(Succeed())
		DeferCleanup(func() { plugin.Close() })
		Eventually(func() indexer.State { return plugin.Status().State }).Should(Equal(indexer.Idle))

		srv = &Server{plugin: plugin, logger: logging.Discard()}
	})

	// exchange sends request over a pipe and reads n responses
	exchange := func(request string, n int) []*parser.Response {
		clientConn, serverConn := createPipeConnection()
		done := make(chan struct{})
		go func() {
			defer close(done)
			srv.handleConnection(ctx, serverConn)
		}()
		go func() {
			_, _ = io.WriteString(clientConn, request)
		}()

		reader := bufio.NewReader(clientConn)
		responses := make([]*parser.Response, 0, n)
		for range n {
			r, err := parser.ReadResponse(reader)
			Expect(err).NotTo(HaveOccurred())
			responses = append(responses, r)
		}
		clientConn.Close()
		Eventually(done).Should(BeClosed())
		return responses
	}

	bodyColumn := func(r *parser.Response, col int) []string {
		out := make([]string, 0, len(r.Body))
		for _, line := range r.Body {
			out = append(out, line[col])
		}
		return out
	}

	Context("when handling query command", func() {
		It("should list the ranked matches", func() {
			r := exchange("TXT01\"note\nquery\n", 1)[0]
			Expect(r.Err()).NotTo(HaveOccurred())
			name, _ := r.Get("cmd")
			Expect(name).To(Equal(parser.CmdQuery))
			Expect(bodyColumn(r, 0)).To(Equal([]string{"N1", "P1"}))
			Expect(bodyColumn(r, 2)).To(Equal([]string{"native", "packaged"}))
			Expect(bodyColumn(r, 4)).To(Equal([]string{"/usr/bin/notepad", "/opt/notepad"}))
		})

		It("should return an empty body for an empty query", func() {
			r := exchange("TXT01query\n", 1)[0]
			Expect(r.Err()).NotTo(HaveOccurred())
			Expect(r.Body).To(BeEmpty())
		})

		It("should use the session language for packaged titles", func() {
			responses := exchange("TXT01\"de\nlang\n\"note\nquery\n", 2)
			lang, _ := responses[0].Get("lang")
			Expect(lang).To(Equal("de"))
			Expect(bodyColumn(responses[1], 3)).To(Equal([]string{"Notepad", "Notizblock"}))
		})
	})

	Context("when handling run command", func() {
		It("should start the program and return its pid", func() {
			r := exchange("TXT01\"N1\nrun\n", 1)[0]
			Expect(r.Err()).NotTo(HaveOccurred())
			pid, err := r.Int("pid")
			Expect(err).NotTo(HaveOccurred())
			Expect(pid).To(Equal(int64(101)))
			Expect(launcher.calls()).To(Equal([]string{"run:N1"}))
		})

		It("should honour the terminal option", func() {
			r := exchange("TXT01\"opt: terminal\n\"N1\nrun\n", 1)[0]
			Expect(r.Err()).NotTo(HaveOccurred())
			Expect(launcher.calls()).To(Equal([]string{"term:N1"}))
		})

		It("should report unknown programs", func() {
			r := exchange("TXT01\"missing\nrun\n", 1)[0]
			var remote *parser.RemoteError
			Expect(r.Err()).To(BeAssignableToTypeOf(remote))
			kind, _ := r.Get("error")
			Expect(kind).To(Equal("unknown program"))
		})

		It("should require an id", func() {
			r := exchange("TXT01run\n", 1)[0]
			kind, _ := r.Get("error")
			Expect(kind).To(Equal("missing id"))
		})
	})

	Context("when handling the context menu", func() {
		It("should list the actions of a native program", func() {
			r := exchange("TXT01\"N1\nmenu\n", 1)[0]
			Expect(r.Err()).NotTo(HaveOccurred())
			Expect(bodyColumn(r, 1)).To(Equal([]string{
				"Open containing folder",
				"Run in terminal",
				"Disable this program from displaying",
			}))
		})

		It("should run the disable action and hide the program", func() {
			responses := exchange("TXT01\"N1\n2\naction\n\"note\nquery\ndisabled\n", 3)
			Expect(responses[0].Err()).NotTo(HaveOccurred())
			hide, _ := responses[0].Get("hide")
			Expect(hide).To(Equal("false"))

			Expect(bodyColumn(responses[1], 0)).To(Equal([]string{"P1"}))
			Expect(bodyColumn(responses[2], 0)).To(Equal([]string{"N1"}))
		})

		It("should reject an index out of range", func() {
			r := exchange("TXT01\"P1\n5\naction\n", 1)[0]
			kind, _ := r.Get("error")
			Expect(kind).To(Equal("invalid argument"))
		})
	})

	Context("when handling disable and enable commands", func() {
		It("should report whether the state changed", func() {
			responses := exchange("TXT01\"P1\ndisable\n\"P1\ndisable\n\"P1\nenable\n\"note\nquery\n", 4)
			changed := make([]string, 0, 3)
			for _, r := range responses[:3] {
				v, _ := r.Get("changed")
				changed = append(changed, v)
			}
			Expect(changed).To(Equal([]string{"true", "false", "true"}))
			Expect(bodyColumn(responses[3], 0)).To(Equal([]string{"N1", "P1"}))
		})

		It("should reject disabling unknown programs", func() {
			r := exchange("TXT01\"missing\ndisable\n", 1)[0]
			Expect(r.Err()).To(MatchError(ContainSubstring("unknown program")))
		})
	})

	Context("when handling reindex and status commands", func() {
		It("should report the new catalog", func() {
			responses := exchange("TXT01reindex\nstatus\n", 2)
			Expect(responses[0].Err()).NotTo(HaveOccurred())
			native, _ := responses[0].Get("native")
			packaged, _ := responses[0].Get("packaged")
			Expect([]string{native, packaged}).To(Equal([]string{"1", "1"}))

			state, _ := responses[1].Get("state")
			Expect(state).To(Equal("idle"))
			last, _ := responses[1].Get("last-indexed")
			Expect(last).NotTo(Equal("never"))
		})
	})

	Context("when handling status and source commands", func() {
		It("should name the plugin", func() {
			r := exchange("TXT01status\n", 1)[0]
			name, _ := r.Get("plugin")
			Expect(name).To(Equal("Program"))
			desc, _ := r.Get("description")
			Expect(desc).To(Equal("Search programs"))
		})

		It("should store a program source in the settings file", func() {
			responses := exchange("TXT01\"tools\n\"/opt/tools\nsource\n\"games\n\"/opt/games\nf\nsource\n", 2)
			Expect(responses[0].Err()).NotTo(HaveOccurred())
			enabled, _ := responses[1].Get("enabled")
			Expect(enabled).To(Equal("false"))

			reloaded := settings.NewFile(filepath.Join(dataDir, "settings.yaml"), nil).Load()
			Expect(reloaded.EnabledSources()).To(Equal([]settings.ProgramSource{
				{Name: "tools", Location: "/opt/tools", Enabled: true},
			}))
		})

		It("should require a name and a location", func() {
			r := exchange("TXT01\"/opt/tools\nsource\n", 1)[0]
			kind, _ := r.Get("error")
			Expect(kind).To(Equal("missing parameter"))
		})
	})

	Context("when the request is malformed", func() {
		It("should report unknown commands and keep the connection", func() {
			responses := exchange("TXT01\nlist\nstatus\n", 2)
			kind, _ := responses[0].Get("error")
			Expect(kind).To(Equal("unknown command"))
			Expect(responses[1].Err()).NotTo(HaveOccurred())
		})

		It("should reject a bad header", func() {
			r := exchange("XML01\nstatus\n", 1)[0]
			kind, _ := r.Get("error")
			Expect(kind).To(Equal("invalid header"))
		})
	})

	Context("when calling handleSave directly", func() {
		var responseBuf bytes.Buffer

		BeforeEach(func() {
			responseBuf.Reset()
			srv.handleSave(&mockConn{writeBuf: &responseBuf})
		})

		It("should contain command name", func() {
			Expect(responseBuf.String()).To(ContainSubstring("cmd: save"))
		})

		It("should have successful status", func() {
			Expect(responseBuf.String()).To(ContainSubstring("status: 0"))
		})

		It("should write the settings file", func() {
			Expect(filepath.Join(dataDir, "settings.yaml")).To(BeAnExistingFile())
		})
	})

	Context("when serving a unix socket", func() {
		It("should answer until the context is cancelled", func() {
			socket := filepath.Join(dataDir, "progd.sock")
			unix, err := NewServer(socket, plugin, logging.Discard())
			Expect(err).NotTo(HaveOccurred())

			serveCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- unix.Start(serveCtx) }()

			conn, err := net.Dial("unix", socket)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()
			_, err = io.WriteString(conn, "TXT01status\n")
			Expect(err).NotTo(HaveOccurred())

			r, err := parser.ReadResponse(bufio.NewReader(conn))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Err()).NotTo(HaveOccurred())

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})

// Helper functions

// createPipeConnection creates an in-memory connection pair for testing
func createPipeConnection() (clientConn, serverConn net.Conn) {
	return net.Pipe()
}

type staticScanner struct {
	native   []*catalog.Native
	packaged []*catalog.Packaged
}

func (s *staticScanner) ScanNative(context.Context, []settings.ProgramSource) ([]*catalog.Native, error) {
	out := make([]*catalog.Native, len(s.native))
	for i, n := range s.native {
		out[i] = catalog.NativeWithEnabled(n, true)
	}
	return out, nil
}

func (s *staticScanner) ScanPackaged(context.Context) ([]*catalog.Packaged, error) {
	out := make([]*catalog.Packaged, len(s.packaged))
	for i, p := range s.packaged {
		out[i] = catalog.PackagedWithEnabled(p, true)
	}
	return out, nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
}

func (f *fakeLauncher) record(kind string, p catalog.Program) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, kind+":"+p.Identifier())
	return 100 + len(f.launched), nil
}

func (f *fakeLauncher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.launched...)
}

func (f *fakeLauncher) Launch(p catalog.Program) (int, error) {
	return f.record("run", p)
}

func (f *fakeLauncher) LaunchInTerminal(p catalog.Program) (int, error) {
	return f.record("term", p)
}

func (f *fakeLauncher) OpenLocation(p catalog.Program) (int, error) {
	return f.record("open", p)
}

// mockConn implements net.Conn for testing
type mockConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	if m.readBuf == nil {
		return 0, io.EOF
	}
	return m.readBuf.Read(b)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	if m.writeBuf == nil {
		return len(b), nil
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error {
	return nil
}

func (m *mockConn) LocalAddr() net.Addr {
	return &net.UnixAddr{Name: "mock", Net: "unix"}
}

func (m *mockConn) RemoteAddr() net.Addr {
	return &net.UnixAddr{Name: "mock", Net: "unix"}
}

func (m *mockConn) SetDeadline(t time.Time) error {
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	return nil
}
