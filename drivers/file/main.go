package main

import (
	driver "github.com/datazip-inc/filetap/drivers/file/internal"
	"github.com/datazip-inc/filetap/protocol"
)

func main() {
	driver := &driver.File{}
	defer driver.CloseConnection()
	protocol.RegisterDriver(driver)
}
