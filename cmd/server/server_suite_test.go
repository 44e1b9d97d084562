package main_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gexec"
)

func TestEchoServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "echo server")
}

var serverBinaryPath, clientBinaryPath string

var _ = SynchronizedBeforeSuite(func() []byte {
	serverPath, err := gexec.Build("github.com/skypro1111/echo-service/cmd/server")
	Expect(err).NotTo(HaveOccurred())
	clientPath, err := gexec.Build("github.com/skypro1111/echo-service/cmd/client")
	Expect(err).NotTo(HaveOccurred())
	return []byte(strings.Join([]string{serverPath, clientPath}, ","))
}, func(data []byte) {
	binaries := strings.Split(string(data), ",")
	serverBinaryPath = binaries[0]
	clientBinaryPath = binaries[1]
})

var _ = SynchronizedAfterSuite(func() {}, func() {
	gexec.CleanupBuildArtifacts()
})
