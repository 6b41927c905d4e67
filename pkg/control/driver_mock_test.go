package control

import (
	"github.com/stretchr/testify/mock"

	"github.com/openbts-tools/gsmws/pkg/gsm"
)

// mockDriver is a testify mock of the bts.Driver capability set, letting
// controller tests exercise cycle logic without a real BTS configuration
// store or command socket.
type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) CurrentARFCN() (gsm.ARFCN, error) {
	args := m.Called()
	return args.Get(0).(gsm.ARFCN), args.Error(1)
}

func (m *mockDriver) ChangeARFCN(new gsm.ARFCN, immediate bool) error {
	args := m.Called(new, immediate)
	return args.Error(0)
}

func (m *mockDriver) SetTxAtten(db int) error {
	args := m.Called(db)
	return args.Error(0)
}

func (m *mockDriver) SetNeighbors(arfcns []gsm.ARFCN, realIPs []string) error {
	args := m.Called(arfcns, realIPs)
	return args.Error(0)
}

func (m *mockDriver) Restart() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockDriver) IsOff() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockDriver) OffsetCorrect() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}
