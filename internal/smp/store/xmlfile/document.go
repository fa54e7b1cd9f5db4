package xmlfile

import (
	"encoding/xml"

	"smpserver/internal/smp/xmldoc"
)

// Version is the only registry file format this backend reads or writes.
// Files with any other version attribute are rejected outright.
const Version = "1.0"

type registryDoc struct {
	XMLName       xml.Name                  `xml:"registry"`
	Version       string                    `xml:"version,attr"`
	ServiceGroups []xmldoc.ServiceGroupElem `xml:"ServiceGroup"`
	Migrations    []xmldoc.MigrationElem    `xml:"ParticipantMigration"`
}
