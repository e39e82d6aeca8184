package pe

import "github.com/ZacharyZcR/rpe/internal/layout"

// Directory indices and thunk flags fixed by the PE format.
const (
	IMAGE_DIRECTORY_ENTRY_EXPORT    = 0
	IMAGE_DIRECTORY_ENTRY_IMPORT    = 1
	IMAGE_DIRECTORY_ENTRY_BASERELOC = 5
	IMAGE_DIRECTORY_ENTRY_TLS       = 9

	IMAGE_NUMBEROF_DIRECTORY_ENTRIES = 16

	IMAGE_ORDINAL_FLAG32 = 0x80000000
	IMAGE_ORDINAL_FLAG64 = 0x8000000000000000

	IMAGE_FILE_MACHINE_I386  = 0x14c
	IMAGE_FILE_MACHINE_AMD64 = 0x8664

	IMAGE_DOS_SIGNATURE = 0x5A4D     // MZ
	IMAGE_NT_SIGNATURE  = 0x00004550 // PE\0\0
)

var imageDOSHeader = layout.New("IMAGE_DOS_HEADER",
	layout.Raw("e_magic", 2),
	layout.U16("e_cblp"),
	layout.U16("e_cp"),
	layout.U16("e_crlc"),
	layout.U16("e_cparhdr"),
	layout.U16("e_minalloc"),
	layout.U16("e_maxalloc"),
	layout.U16("e_ss"),
	layout.U16("e_sp"),
	layout.U16("e_csum"),
	layout.U16("e_ip"),
	layout.U16("e_cs"),
	layout.U16("e_lfarlc"),
	layout.U16("e_ovno"),
	layout.Raw("e_res", 8),
	layout.U16("e_oemid"),
	layout.U16("e_oeminfo"),
	layout.Raw("e_res2", 20),
	layout.U32("e_lfanew"),
)

var imageFileHeader = layout.New("IMAGE_FILE_HEADER",
	layout.U16("Machine"),
	layout.U16("NumberOfSections"),
	layout.U32("TimeDateStamp"),
	layout.U32("PointerToSymbolTable"),
	layout.U32("NumberOfSymbols"),
	layout.U16("SizeOfOptionalHeader"),
	layout.U16("Characteristics"),
)

var imageDataDirectory = layout.New("IMAGE_DATA_DIRECTORY",
	layout.U32("VirtualAddress"),
	layout.U32("Size"),
)

var imageDataDirectoryArray = layout.New("IMAGE_DATA_DIRECTORY[16]",
	layout.ArrayOf("Entries", imageDataDirectory, IMAGE_NUMBEROF_DIRECTORY_ENTRIES),
)

var imageOptionalHeader32 = layout.New("IMAGE_OPTIONAL_HEADER32",
	layout.U16("Magic"),
	layout.U8("MajorLinkerVersion"),
	layout.U8("MinorLinkerVersion"),
	layout.U32("SizeOfCode"),
	layout.U32("SizeOfInitializedData"),
	layout.U32("SizeOfUninitializedData"),
	layout.U32("AddressOfEntryPoint"),
	layout.U32("BaseOfCode"),
	layout.U32("BaseOfData"),
	layout.U32("ImageBase"),
	layout.U32("SectionAlignment"),
	layout.U32("FileAlignment"),
	layout.U16("MajorOperatingSystemVersion"),
	layout.U16("MinorOperatingSystemVersion"),
	layout.U16("MajorImageVersion"),
	layout.U16("MinorImageVersion"),
	layout.U16("MajorSubsystemVersion"),
	layout.U16("MinorSubsystemVersion"),
	layout.U32("Win32VersionValue"),
	layout.U32("SizeOfImage"),
	layout.U32("SizeOfHeaders"),
	layout.U32("CheckSum"),
	layout.U16("Subsystem"),
	layout.U16("DllCharacteristics"),
	layout.U32("SizeOfStackReserve"),
	layout.U32("SizeOfStackCommit"),
	layout.U32("SizeOfHeapReserve"),
	layout.U32("SizeOfHeapCommit"),
	layout.U32("LoaderFlags"),
	layout.U32("NumberOfRvaAndSizes"),
	layout.ArrayOf("DataDirectory", imageDataDirectory, IMAGE_NUMBEROF_DIRECTORY_ENTRIES),
)

var imageOptionalHeader64 = layout.New("IMAGE_OPTIONAL_HEADER64",
	layout.U16("Magic"),
	layout.U8("MajorLinkerVersion"),
	layout.U8("MinorLinkerVersion"),
	layout.U32("SizeOfCode"),
	layout.U32("SizeOfInitializedData"),
	layout.U32("SizeOfUninitializedData"),
	layout.U32("AddressOfEntryPoint"),
	layout.U32("BaseOfCode"),
	layout.U64("ImageBase"),
	layout.U32("SectionAlignment"),
	layout.U32("FileAlignment"),
	layout.U16("MajorOperatingSystemVersion"),
	layout.U16("MinorOperatingSystemVersion"),
	layout.U16("MajorImageVersion"),
	layout.U16("MinorImageVersion"),
	layout.U16("MajorSubsystemVersion"),
	layout.U16("MinorSubsystemVersion"),
	layout.U32("Win32VersionValue"),
	layout.U32("SizeOfImage"),
	layout.U32("SizeOfHeaders"),
	layout.U32("CheckSum"),
	layout.U16("Subsystem"),
	layout.U16("DllCharacteristics"),
	layout.U64("SizeOfStackReserve"),
	layout.U64("SizeOfStackCommit"),
	layout.U64("SizeOfHeapReserve"),
	layout.U64("SizeOfHeapCommit"),
	layout.U32("LoaderFlags"),
	layout.U32("NumberOfRvaAndSizes"),
	layout.ArrayOf("DataDirectory", imageDataDirectory, IMAGE_NUMBEROF_DIRECTORY_ENTRIES),
)

var imageNTHeaders32 = layout.New("IMAGE_NT_HEADERS32",
	layout.U32("Signature"),
	layout.Nested("FileHeader", imageFileHeader),
	layout.Nested("OptionalHeader", imageOptionalHeader32),
)

var imageNTHeaders64 = layout.New("IMAGE_NT_HEADERS64",
	layout.U32("Signature"),
	layout.Nested("FileHeader", imageFileHeader),
	layout.Nested("OptionalHeader", imageOptionalHeader64),
)

var imageSectionHeader = layout.New("IMAGE_SECTION_HEADER",
	layout.Raw("Name", 8),
	layout.U32("VirtualSize"),
	layout.U32("VirtualAddress"),
	layout.U32("SizeOfRawData"),
	layout.U32("PointerToRawData"),
	layout.U32("PointerToRelocations"),
	layout.U32("PointerToLinenumbers"),
	layout.U16("NumberOfRelocations"),
	layout.U16("NumberOfLinenumbers"),
	layout.U32("Characteristics"),
)

var imageImportDescriptor = layout.New("IMAGE_IMPORT_DESCRIPTOR",
	layout.U32("OriginalFirstThunk"),
	layout.U32("TimeDateStamp"),
	layout.U32("ForwarderChain"),
	layout.U32("Name"),
	layout.U32("FirstThunk"),
)

// imageThunkData covers both union members (Ordinal and AddressOfData).
var imageThunkData = layout.New("IMAGE_THUNK_DATA",
	layout.Ptr("Ordinal"),
)

var imageImportByName = layout.New("IMAGE_IMPORT_BY_NAME",
	layout.U16("Hint"),
	layout.U8("Name"),
)

var imageExportDirectory = layout.New("IMAGE_EXPORT_DIRECTORY",
	layout.U32("Characteristics"),
	layout.U32("TimeDateStamp"),
	layout.U16("MajorVersion"),
	layout.U16("MinorVersion"),
	layout.U32("Name"),
	layout.U32("Base"),
	layout.U32("NumberOfFunctions"),
	layout.U32("NumberOfNames"),
	layout.U32("AddressOfFunctions"),
	layout.U32("AddressOfNames"),
	layout.U32("AddressOfNameOrdinals"),
)

var imageTLSDirectory = layout.New("IMAGE_TLS_DIRECTORY",
	layout.Ptr("StartAddressOfRawData"),
	layout.Ptr("EndAddressOfRawData"),
	layout.Ptr("AddressOfIndex"),
	layout.Ptr("AddressOfCallBacks"),
	layout.U32("SizeOfZeroFill"),
	layout.U32("Characteristics"),
)

var imageBaseRelocation = layout.New("IMAGE_BASE_RELOCATION",
	layout.U32("VirtualAddress"),
	layout.U32("SizeOfBlock"),
)

// ulongPtr is a single pointer-sized slot, as in callback arrays.
var ulongPtr = layout.New("ULONG_PTR",
	layout.Ptr("Value"),
)
