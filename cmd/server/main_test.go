package main_test

import (
	"net"
	"os/exec"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"
)

var listenPattern = regexp.MustCompile(`tcp_address=0\.0\.0\.0:(\d+)`)

func startServer(args ...string) *gexec.Session {
	cmd := exec.Command(serverBinaryPath, args...)
	session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
	Expect(err).NotTo(HaveOccurred())
	return session
}

func serverAddress(session *gexec.Session) string {
	Eventually(session.Out).Should(gbytes.Say("Echo server listening"))
	match := listenPattern.FindSubmatch(session.Out.Contents())
	Expect(match).NotTo(BeNil())
	return net.JoinHostPort("127.0.0.1", string(match[1]))
}

func runClient(args ...string) *gexec.Session {
	cmd := exec.Command(clientBinaryPath, args...)
	session, err := gexec.Start(cmd, GinkgoWriter, GinkgoWriter)
	Expect(err).NotTo(HaveOccurred())
	return session
}

var _ = Describe("Echo server", func() {
	var session *gexec.Session

	BeforeEach(func() {
		session = startServer("-port", "0", "-min-response-len", "5", "-v")
	})

	AfterEach(func() {
		session.Kill().Wait()
	})

	Context("startup", func() {
		It("starts and doesn't terminate immediately", func() {
			Consistently(session, 300*time.Millisecond).ShouldNot(gexec.Exit())
		})

		It("logs the bound address and settings", func() {
			Eventually(session.Out).Should(gbytes.Say("Echo server listening"))
			Expect(string(session.Out.Contents())).To(ContainSubstring("threads=1"))
			Expect(string(session.Out.Contents())).To(ContainSubstring("min_response_len=5"))
			Expect(string(session.Out.Contents())).To(ContainSubstring("verbose=true"))
		})

		It("refuses to start on a busy port", func() {
			addr := serverAddress(session)
			_, port, err := net.SplitHostPort(addr)
			Expect(err).NotTo(HaveOccurred())

			second := startServer("-port", port)
			Eventually(second).Should(gexec.Exit(1))
			Expect(second.Err).To(gbytes.Say("Failed to start echo server"))
		})
	})

	Context("TCP", func() {
		It("echoes a message that reaches the threshold", func() {
			client := runClient("-target", serverAddress(session), "-message", "hello")
			Eventually(client).Should(gexec.Exit(0))
			Expect(client.Out).To(gbytes.Say("hello"))
			Eventually(session.Out).Should(gbytes.Say("Connection closed"))
		})

		It("drops a message below the threshold", func() {
			client := runClient("-target", serverAddress(session), "-message", "hi")
			Eventually(client).Should(gexec.Exit(0))
			Expect(client.Out.Contents()).To(BeEmpty())
			Eventually(session.Out).Should(gbytes.Say("Connection closed"))
		})
	})

	Context("UDP", func() {
		It("echoes a datagram that reaches the threshold", func() {
			client := runClient("-target", serverAddress(session), "-message", "hello", "-protocol", "udp")
			Eventually(client).Should(gexec.Exit(0))
			Expect(client.Out).To(gbytes.Say("hello"))
		})

		It("does not answer a short datagram", func() {
			client := runClient("-target", serverAddress(session), "-message", "hi", "-protocol", "udp", "-timeout", "300ms")
			Eventually(client).Should(gexec.Exit(1))
			Expect(client.Err).To(gbytes.Say("no reply"))
		})
	})

	Context("shutdown", func() {
		It("exits cleanly on SIGTERM", func() {
			serverAddress(session)
			session.Terminate()
			Eventually(session).Should(gexec.Exit(0))
			Expect(session.Out).To(gbytes.Say("Echo server stopped"))
		})
	})
})

var _ = Describe("Configuration errors", func() {
	It("rejects zero threads", func() {
		session := startServer("-threads", "0")
		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("threads must be at least 1"))
	})

	It("rejects an out of range port", func() {
		session := startServer("-port", "70000")
		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("port must be between 0 and 65535"))
	})

	It("rejects a missing configuration file", func() {
		session := startServer("-config", "/nonexistent/echo.yaml")
		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("Failed to load configuration"))
	})
})
