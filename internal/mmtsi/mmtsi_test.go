package mmtsi_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/mmttlv/internal/aribtime"
	"github.com/zsiec/mmttlv/internal/mmtsi"
	"github.com/zsiec/mmttlv/internal/mmtsi/mmtsitest"
)

func TestDecodeMessage_PLT(t *testing.T) {
	t.Parallel()
	m, err := mmtsi.DecodeMessage(mmtsitest.PLT(3, 0x0010, 0x0020))
	require.NoError(t, err)
	assert.Equal(t, uint16(mmtsi.MessagePA), m.ID)

	plt, ok := m.Table().(*mmtsi.PLT)
	require.True(t, ok, "table is %T", m.Table())
	assert.Equal(t, uint8(3), plt.Version)
	require.Len(t, plt.Packages, 2)
	assert.Equal(t, uint16(0x0020), plt.Packages[1].Location.PacketID)
	assert.True(t, plt.Packages[1].Location.SameDataflow())
	sid, ok := plt.Packages[1].ServiceID()
	assert.True(t, ok)
	assert.Equal(t, uint16(2), sid)
}

func TestDecodeMessage_MPT(t *testing.T) {
	t.Parallel()
	raw := mmtsitest.MPT{
		Version:   7,
		ServiceID: 0x0401,
		Descriptors: append(
			mmtsitest.AccessControl(0x0005, 0x0120),
			mmtsitest.ApplicationService(0x0130, 0x0131, 0x0140, 0x0141)...,
		),
		Assets: []mmtsitest.Asset{
			{Type: mmtsi.AssetTypeHEVC, PacketID: 0x0100, Descriptors: mmtsitest.Descriptor(mmtsi.TagStreamIdentifier, []byte{0, 0})},
			{Type: mmtsi.AssetTypeAAC, PacketID: 0x0110},
		},
	}.Bytes()

	m, err := mmtsi.DecodeMessage(raw)
	require.NoError(t, err)
	mpt, ok := m.Table().(*mmtsi.MPT)
	require.True(t, ok)
	assert.Equal(t, uint8(7), mpt.Version)
	sid, _ := mpt.ServiceID()
	assert.Equal(t, uint16(0x0401), sid)
	require.Len(t, mpt.Assets, 2)
	assert.Equal(t, "hev1", mmtsi.FourCC(mpt.Assets[0].Type))
	assert.Equal(t, uint16(0x0110), mpt.Assets[1].Locations[0].PacketID)

	tag, err := mmtsi.DecodeStreamIdentifier(mpt.Assets[0].Descriptors[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(0), tag)

	d, ok := mmtsi.Find(mpt.Descriptors, mmtsi.TagAccessControl)
	require.True(t, ok)
	ac, err := mmtsi.DecodeAccessControl(d)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), ac.CASystemID)
	assert.Equal(t, uint16(0x0120), ac.Location.PacketID)

	d, ok = mmtsi.Find(mpt.Descriptors, mmtsi.TagApplicationService)
	require.True(t, ok)
	as, err := mmtsi.DecodeApplicationService(d)
	require.NoError(t, err)
	assert.True(t, as.DefaultAIT)
	assert.Equal(t, uint8(1), as.ApplicationFormat)
	assert.Equal(t, uint16(0x0130), as.AIT.PacketID)
	require.NotNil(t, as.DTMessage)
	assert.Equal(t, uint16(0x0131), as.DTMessage.PacketID)
	require.Len(t, as.EMTs, 2)
	assert.Equal(t, uint16(0x0141), as.EMTs[1].Location.PacketID)
}

func TestDecodeMessage_CAT(t *testing.T) {
	t.Parallel()
	m, err := mmtsi.DecodeMessage(mmtsitest.CAT(2, mmtsitest.AccessControl(0x0005, 0x0300)))
	require.NoError(t, err)
	cat, ok := m.Table().(*mmtsi.CAT)
	require.True(t, ok)
	assert.Equal(t, uint8(2), cat.Version)
	require.Len(t, cat.Descriptors, 1)
	assert.Equal(t, uint16(mmtsi.TagAccessControl), cat.Descriptors[0].Tag)
}

func shortEvent(name, text string) []byte {
	data := []byte{'j', 'p', 'n', byte(len(name))}
	data = append(data, name...)
	data = binary.BigEndian.AppendUint16(data, uint16(len(text)))
	data = append(data, text...)
	return mmtsitest.Descriptor(mmtsi.TagShortEvent, data)
}

func buildEIT(tableID uint8, serviceID uint16) []byte {
	body := []byte{0x00, 0x01, 0x00, 0x04, 0, mmtsi.TableEITPresentFollowing}
	desc := shortEvent("News", "Today")
	body = binary.BigEndian.AppendUint16(body, 0x1234)
	// 1993-10-13 12:45:00, 1h30m
	body = append(body, 0xC0, 0x79, 0x12, 0x45, 0x00, 0x01, 0x30, 0x00)
	body = binary.BigEndian.AppendUint16(body, 0x4000|uint16(len(desc)))
	body = append(body, desc...)
	return mmtsitest.M2Section(mmtsitest.Section(tableID, serviceID, 4, body))
}

func TestDecodeMessage_EIT(t *testing.T) {
	t.Parallel()
	m, err := mmtsi.DecodeMessage(buildEIT(mmtsi.TableEITPresentFollowing, 0x0401))
	require.NoError(t, err)
	eit, ok := m.Table().(*mmtsi.EIT)
	require.True(t, ok)
	assert.True(t, eit.PresentFollowing())
	assert.Equal(t, uint8(mmtsi.TableEITPresentFollowing), eit.TableID())
	assert.Equal(t, uint16(0x0401), eit.ServiceID)
	assert.Equal(t, uint8(4), eit.Version)
	assert.True(t, eit.CurrentNext)
	assert.Equal(t, uint16(1), eit.TLVStreamID)
	assert.Equal(t, uint16(4), eit.OriginalNetworkID)
	require.Len(t, eit.Events, 1)

	ev := eit.Events[0]
	assert.Equal(t, uint16(0x1234), ev.EventID)
	assert.Equal(t, uint8(2), ev.RunningStatus)
	start, ok := ev.Start()
	require.True(t, ok)
	assert.True(t, start.Equal(time.Date(1993, 10, 13, 12, 45, 0, 0, aribtime.JST)))
	dur, ok := ev.Length()
	require.True(t, ok)
	assert.Equal(t, 90*time.Minute, dur)

	se, err := mmtsi.DecodeShortEvent(ev.Descriptors[0])
	require.NoError(t, err)
	assert.Equal(t, "News", string(se.Name))
	assert.Equal(t, "Today", string(se.Text))
}

func TestDecodeMessage_EITScheduleIndex(t *testing.T) {
	t.Parallel()
	m, err := mmtsi.DecodeMessage(buildEIT(mmtsi.TableEITScheduleExtended+2, 1))
	require.NoError(t, err)
	eit := m.Table().(*mmtsi.EIT)
	assert.True(t, eit.Extended())
	assert.Equal(t, 2, eit.TableIndex())
	assert.Equal(t, 0, eit.LastTableIndex())
}

func TestDecodeMessage_SDT(t *testing.T) {
	t.Parallel()
	svc := mmtsitest.Descriptor(mmtsi.TagService, []byte{0x01, 2, 'N', 'H', 3, 'K', 'G', '1'})
	body := []byte{0x00, 0x04, 0xFF}
	body = binary.BigEndian.AppendUint16(body, 0x0401)
	body = append(body, 0xE3)
	body = binary.BigEndian.AppendUint16(body, 0x8000|uint16(len(svc)))
	body = append(body, svc...)

	m, err := mmtsi.DecodeMessage(mmtsitest.M2Section(mmtsitest.Section(mmtsi.TableSDTActual, 1, 0, body)))
	require.NoError(t, err)
	sdt := m.Table().(*mmtsi.SDT)
	assert.True(t, sdt.Actual())
	assert.Equal(t, uint16(1), sdt.TLVStreamID)
	require.Len(t, sdt.Services, 1)
	s := sdt.Services[0]
	assert.Equal(t, uint16(0x0401), s.ServiceID)
	assert.True(t, s.EITSchedule)
	assert.True(t, s.EITPresentFollowing)
	assert.Equal(t, uint8(7), s.EITUserDefinedFlags)
	assert.Equal(t, uint8(4), s.RunningStatus)

	sd, err := mmtsi.DecodeService(s.Descriptors[0])
	require.NoError(t, err)
	assert.Equal(t, "NH", string(sd.ProviderName))
	assert.Equal(t, "KG1", string(sd.Name))
}

func TestDecodeMessage_TOT(t *testing.T) {
	t.Parallel()
	body := []byte{0xC0, 0x79, 0x12, 0x45, 0x30, 0xF0, 0x00}
	m, err := mmtsi.DecodeMessage(mmtsitest.Message(mmtsi.MessageM2ShortSection, 0, mmtsitest.ShortSection(mmtsi.TableTOT, body)))
	require.NoError(t, err)
	tot := m.Table().(*mmtsi.TOT)
	got, ok := tot.Time()
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(1993, 10, 13, 12, 45, 30, 0, aribtime.JST)))
}

func TestDecodeMessage_CDTLogo(t *testing.T) {
	t.Parallel()
	body := []byte{0x00, 0x04, 0x01, 0xF0, 0x00, 0x05}
	body = binary.BigEndian.AppendUint16(body, 0xFE01)
	body = binary.BigEndian.AppendUint16(body, 0xF002)
	body = binary.BigEndian.AppendUint16(body, 3)
	body = append(body, 0x89, 'P', 'N')
	m, err := mmtsi.DecodeMessage(mmtsitest.M2Section(mmtsitest.Section(mmtsi.TableCDT, 0x0010, 1, body)))
	require.NoError(t, err)
	cdt := m.Table().(*mmtsi.CDT)
	assert.Equal(t, uint16(0x0010), cdt.DownloadDataID)
	assert.Equal(t, uint8(1), cdt.DataType)
	assert.Equal(t, uint8(5), cdt.Logo.Type)
	assert.Equal(t, uint16(0x01), cdt.Logo.ID)
	assert.Equal(t, uint16(0x002), cdt.Logo.Version)
	assert.Equal(t, []byte{0x89, 'P', 'N'}, cdt.Logo.Data)
}

func TestDecodeMessage_AITAndEMT(t *testing.T) {
	t.Parallel()
	apps := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x02, mmtsi.ControlAutostart, 0xF0, 0x00}
	body := []byte{0xF0, 0x00}
	body = binary.BigEndian.AppendUint16(body, 0xF000|uint16(len(apps)))
	body = append(body, apps...)
	m, err := mmtsi.DecodeMessage(mmtsitest.M2Section(mmtsitest.Section(mmtsi.TableAIT, 0x0011, 0, body)))
	require.NoError(t, err)
	ait := m.Table().(*mmtsi.AIT)
	assert.Equal(t, uint16(0x0011), ait.ApplicationType)
	require.Len(t, ait.Applications, 1)
	assert.Equal(t, uint32(2), ait.Applications[0].ApplicationID)
	assert.Equal(t, uint8(mmtsi.ControlAutostart), ait.Applications[0].ControlCode)

	m, err = mmtsi.DecodeMessage(mmtsitest.M2Section(mmtsitest.Section(mmtsi.TableEMT, 0x3005, 0, nil)))
	require.NoError(t, err)
	emt := m.Table().(*mmtsi.EMT)
	assert.Equal(t, uint8(3), emt.DataEventID)
	assert.Equal(t, uint16(5), emt.EventMessageGroupID)
}

func TestDecodeMessage_DataTransmission(t *testing.T) {
	t.Parallel()
	ddmt := []byte{3, 'a', 'p', 'p', 1, 0x00, 0x07, 1, 1, 'd'}
	ddmt = binary.BigEndian.AppendUint16(ddmt, 1)
	ddmt = append(ddmt, 0x00, 0x08, 5, 'i', '.', 'h', 't', 'm')
	m, err := mmtsi.DecodeMessage(mmtsitest.Message(mmtsi.MessageDataTransmission, 0,
		mmtsitest.Section(mmtsi.TableDDMT, 0x0200, 0, ddmt)))
	require.NoError(t, err)
	d := m.Table().(*mmtsi.DDMT)
	assert.Equal(t, uint8(2), d.SessionID)
	assert.Equal(t, "app", string(d.BaseDirectoryPath))
	require.Len(t, d.Nodes, 1)
	assert.Equal(t, "i.htm", string(d.Nodes[0].Files[0].Name))

	damt := binary.BigEndian.AppendUint32(nil, 0x01)
	damt = binary.BigEndian.AppendUint16(damt, 0x0040)
	damt = binary.BigEndian.AppendUint32(damt, 0x30000000)
	damt = append(damt, 1)
	damt = binary.BigEndian.AppendUint32(damt, 9)
	damt = binary.BigEndian.AppendUint32(damt, 100)
	damt = append(damt, 0x30)
	damt = binary.BigEndian.AppendUint16(damt, 1)
	damt = append(damt, 0x00, 0x08)
	damt = binary.BigEndian.AppendUint32(damt, 1)
	damt = binary.BigEndian.AppendUint32(damt, 100)
	damt = append(damt, 0, 0x00, 0)
	damt = append(damt, 0, 0)
	m, err = mmtsi.DecodeMessage(mmtsitest.Message(mmtsi.MessageDataTransmission, 0,
		mmtsitest.Section(mmtsi.TableDAMT, 0x0200, 0, damt)))
	require.NoError(t, err)
	a := m.Table().(*mmtsi.DAMT)
	assert.Equal(t, uint8(3), a.DataEventID())
	require.Len(t, a.MPUs, 1)
	assert.Equal(t, uint8(mmtsi.CompressionNone), a.MPUs[0].CompressionType)
	require.Len(t, a.MPUs[0].Items, 1)
	assert.Equal(t, uint16(8), a.MPUs[0].Items[0].NodeTag)
}

func TestDecodeMessage_Errors(t *testing.T) {
	t.Parallel()
	eit := buildEIT(mmtsi.TableEITPresentFollowing, 1)
	corrupt := append([]byte(nil), eit...)
	corrupt[len(corrupt)-1] ^= 0xFF

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, mmtsi.ErrTruncated},
		{"unknown message", mmtsitest.Message(0x1234, 0, nil), mmtsi.ErrUnsupported},
		{"length overrun", eit[:len(eit)-3], mmtsi.ErrTruncated},
		{"crc", corrupt, mmtsi.ErrCRC},
		{"ecm rejected", mmtsitest.M2Section(mmtsitest.Section(mmtsi.TableECM, 0, 0, []byte{1, 2})), mmtsi.ErrUnsupported},
		{"short syntax in long message", mmtsitest.M2Section(mmtsitest.ShortSection(mmtsi.TableTOT, []byte{0, 0, 0, 0, 0, 0xF0, 0})), mmtsi.ErrSyntax},
		{"pa without tables", mmtsitest.PA(), mmtsi.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mmtsi.DecodeMessage(tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadDescriptors_LengthSizes(t *testing.T) {
	t.Parallel()
	var b []byte
	b = append(b, mmtsitest.Descriptor(0x8004, []byte{1})...)
	b = append(b, mmtsitest.Descriptor(0xF001, []byte{2, 2})...)
	b = append(b, mmtsitest.Descriptor(0x7001, []byte{3, 3, 3})...)
	b = append(b, mmtsitest.Descriptor(0x4001, nil)...)
	b = append(b, 0x80, 0x10, 9) // truncated

	ds := mmtsi.ReadDescriptors(b)
	require.Len(t, ds, 4)
	assert.Equal(t, []byte{1}, ds[0].Data)
	assert.Equal(t, []byte{2, 2}, ds[1].Data)
	assert.Equal(t, []byte{3, 3, 3}, ds[2].Data)
	assert.Empty(t, ds[3].Data)
}

func TestFourCC(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "mp4a", mmtsi.FourCC(mmtsi.AssetTypeAAC))
	assert.Equal(t, "stpp", mmtsi.FourCC(mmtsi.AssetTypeTimedText))
	assert.Equal(t, "0x00000001", mmtsi.FourCC(1))
}

func FuzzDecodeMessage(f *testing.F) {
	f.Add(mmtsitest.PLT(0, 0x10))
	f.Add(buildEIT(mmtsi.TableEITPresentFollowing, 1))
	f.Add(mmtsitest.CAT(0, mmtsitest.AccessControl(1, 2)))
	f.Fuzz(func(t *testing.T, b []byte) {
		_, _ = mmtsi.DecodeMessage(b)
	})
}
