package build

import (
	"bytes"
	"fmt"
	"text/template"
)

// ovfTemplate is the fixed descriptor bundled into the OVA. Only the
// image name, version, and disk filename vary per build.
const ovfTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Envelope xmlns="http://schemas.dmtf.org/ovf/envelope/1"
          xmlns:ovf="http://schemas.dmtf.org/ovf/envelope/1"
          xmlns:rasd="http://schemas.dmtf.org/wbem/wscim/1/cim-schema/2/CIM_ResourceAllocationSettingData">
  <References>
    <File ovf:href="{{ .DiskFile }}" ovf:id="file1"/>
  </References>
  <DiskSection>
    <Info>Virtual disk information</Info>
    <Disk ovf:diskId="vmdisk1" ovf:fileRef="file1" ovf:format="http://www.vmware.com/interfaces/specifications/vmdk.html#streamOptimized"/>
  </DiskSection>
  <VirtualSystem ovf:id="{{ .Name }}-{{ .Version }}">
    <Info>Kubernetes node image {{ .Name }} {{ .Version }}</Info>
    <Name>{{ .Name }}</Name>
    <VirtualHardwareSection>
      <Info>Virtual hardware requirements</Info>
      <Item>
        <rasd:ElementName>2 virtual CPUs</rasd:ElementName>
        <rasd:InstanceID>1</rasd:InstanceID>
        <rasd:ResourceType>3</rasd:ResourceType>
        <rasd:VirtualQuantity>2</rasd:VirtualQuantity>
      </Item>
      <Item>
        <rasd:AllocationUnits>byte * 2^20</rasd:AllocationUnits>
        <rasd:ElementName>4096 MB of memory</rasd:ElementName>
        <rasd:InstanceID>2</rasd:InstanceID>
        <rasd:ResourceType>4</rasd:ResourceType>
        <rasd:VirtualQuantity>4096</rasd:VirtualQuantity>
      </Item>
    </VirtualHardwareSection>
  </VirtualSystem>
</Envelope>
`

// renderOVF produces the OVA descriptor for the given image.
func renderOVF(name, version, diskFile string) ([]byte, error) {
	tmpl, err := template.New("ovf").Parse(ovfTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OVF template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Name, Version, DiskFile string
	}{name, version, diskFile})
	if err != nil {
		return nil, fmt.Errorf("failed to render OVF descriptor: %w", err)
	}
	return buf.Bytes(), nil
}
